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
	"bufio"
	"io"
	"strings"

	"github.com/drydockworks/drydock/cmd/drydock/config"
)

// RewriteSQL streams src to dst line by line, applying each rule in order
// as a literal substring replacement. With no rules it degenerates to a
// plain copy.
//
// # Description
//
// Dumps taken through `docker exec -t` carry CRLF line endings, so rules
// are matched as substrings within a line rather than against the whole
// line; the terminator (and the rest of the line) passes through
// untouched. Lines are read with bufio.Reader, not a Scanner, because a
// pg_dumpall COPY row can exceed any fixed token limit.
//
// # Inputs
//
//   - dst: receives the rewritten stream.
//   - src: the dump, already decompressed.
//   - rules: ordered literal substitutions. Rules with an empty Match are
//     skipped.
//
// # Outputs
//
//   - error: first read or write failure; nil on clean EOF.
func RewriteSQL(dst io.Writer, src io.Reader, rules []config.SQLRewrite) error {
	active := rules[:0:0]
	for _, rule := range rules {
		if rule.Match != "" {
			active = append(active, rule)
		}
	}
	if len(active) == 0 {
		_, err := io.Copy(dst, src)
		return err
	}

	r := bufio.NewReaderSize(src, 128<<10)
	w := bufio.NewWriterSize(dst, 128<<10)
	for {
		line, readErr := r.ReadString('\n')
		if line != "" {
			for _, rule := range active {
				line = strings.ReplaceAll(line, rule.Match, rule.Replace)
			}
			if _, err := w.WriteString(line); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	return w.Flush()
}
