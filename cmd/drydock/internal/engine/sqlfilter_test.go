// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydockworks/drydock/cmd/drydock/config"
)

const (
	searchPathOld = "SELECT pg_catalog.set_config('search_path', '', false);"
	searchPathNew = "SELECT pg_catalog.set_config('search_path', 'public, pg_catalog', true);"
)

func rewrite(t *testing.T, input string, rules []config.SQLRewrite) string {
	t.Helper()
	var out strings.Builder
	require.NoError(t, RewriteSQL(&out, strings.NewReader(input), rules))
	return out.String()
}

func TestRewriteSQL_DefaultRule(t *testing.T) {
	rules := config.DefaultSettings().Restore.SQLRewrites

	input := strings.Join([]string{
		"--",
		"-- PostgreSQL database cluster dump",
		"--",
		searchPathOld,
		"CREATE TABLE assets (id uuid);",
		"",
	}, "\n")

	want := strings.Join([]string{
		"--",
		"-- PostgreSQL database cluster dump",
		"--",
		searchPathNew,
		"CREATE TABLE assets (id uuid);",
		"",
	}, "\n")

	assert.Equal(t, want, rewrite(t, input, rules))
}

func TestRewriteSQL_CRLFLines(t *testing.T) {
	// Dumps taken through `docker exec -t` end lines with \r\n. The rule
	// must still match and the terminator must pass through untouched.
	rules := config.DefaultSettings().Restore.SQLRewrites

	input := "SET client_encoding = 'UTF8';\r\n" + searchPathOld + "\r\n"
	want := "SET client_encoding = 'UTF8';\r\n" + searchPathNew + "\r\n"

	assert.Equal(t, want, rewrite(t, input, rules))
}

func TestRewriteSQL_NoRulesCopiesVerbatim(t *testing.T) {
	input := searchPathOld + "\nanything at all\x00binary-ish\n"

	assert.Equal(t, input, rewrite(t, input, nil))
	assert.Equal(t, input, rewrite(t, input, []config.SQLRewrite{}))
}

func TestRewriteSQL_EmptyMatchSkipped(t *testing.T) {
	rules := []config.SQLRewrite{{Match: "", Replace: "XXX"}}
	input := "SELECT 1;\n"

	assert.Equal(t, input, rewrite(t, input, rules))
}

func TestRewriteSQL_AllOccurrencesInLine(t *testing.T) {
	rules := []config.SQLRewrite{{Match: "old_schema", Replace: "new_schema"}}
	input := "ALTER TABLE old_schema.a OWNER TO old_schema;\n"

	assert.Equal(t, "ALTER TABLE new_schema.a OWNER TO new_schema;\n",
		rewrite(t, input, rules))
}

func TestRewriteSQL_RulesApplyInOrder(t *testing.T) {
	rules := []config.SQLRewrite{
		{Match: "alpha", Replace: "beta"},
		{Match: "beta", Replace: "gamma"},
	}

	// The first rule's output feeds the second.
	assert.Equal(t, "gamma\n", rewrite(t, "alpha\n", rules))
}

func TestRewriteSQL_LongLines(t *testing.T) {
	// COPY rows can be far longer than any scanner token limit.
	rules := []config.SQLRewrite{{Match: "TAIL_MARKER", Replace: "REPLACED"}}
	long := strings.Repeat("x", 512<<10)
	input := long + "TAIL_MARKER\nnext line\n"

	got := rewrite(t, input, rules)
	assert.Equal(t, long+"REPLACED\nnext line\n", got)
}

func TestRewriteSQL_NoTrailingNewline(t *testing.T) {
	rules := []config.SQLRewrite{{Match: "foo", Replace: "bar"}}

	assert.Equal(t, "bar", rewrite(t, "foo", rules))
}
