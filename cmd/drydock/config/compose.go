// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ComposeFile is a read-only model of a docker-compose document, limited to
// the fields stack resolution needs. Services keep document order because
// compose override semantics make the last declaration win.
type ComposeFile struct {
	Services []ComposeService
}

type ComposeService struct {
	Name          string // service key, e.g. "immich-server"
	ContainerName string // explicit container_name if declared
	Image         string
	Volumes       []VolumeMount
}

// VolumeMount holds one volume entry with raw, unexpanded strings. Callers
// run Expand over Source before treating it as a host path.
type VolumeMount struct {
	Source string // host path or named volume
	Target string // container path
}

// LoadComposeFile parses a docker-compose YAML file.
//
// Both the short volume form ("host:container[:mode]") and the long mapping
// form (source:/target:) are understood. Entries that fit neither shape are
// skipped, matching compose's own tolerance. A document without a services
// section yields an empty model, leaving the resolver to its env fallbacks.
func LoadComposeFile(path string) (*ComposeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: compose file %s: %v", ErrConfig, path, err)
	}
	return parseCompose(data, path)
}

func parseCompose(data []byte, path string) (*ComposeFile, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: compose file %s: %v", ErrConfig, path, err)
	}

	root := documentRoot(&doc)
	if root == nil {
		return &ComposeFile{}, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: compose file %s: top level is not a mapping", ErrConfig, path)
	}

	cf := &ComposeFile{}
	services := mappingValue(root, "services")
	if services == nil || services.Kind != yaml.MappingNode {
		return cf, nil
	}

	for i := 0; i+1 < len(services.Content); i += 2 {
		key := services.Content[i]
		val := services.Content[i+1]

		svc := ComposeService{Name: key.Value}
		if val.Kind == yaml.MappingNode {
			if n := mappingValue(val, "container_name"); n != nil {
				svc.ContainerName = n.Value
			}
			if n := mappingValue(val, "image"); n != nil {
				svc.Image = n.Value
			}
			if n := mappingValue(val, "volumes"); n != nil && n.Kind == yaml.SequenceNode {
				for _, entry := range n.Content {
					if mount, ok := parseVolume(entry); ok {
						svc.Volumes = append(svc.Volumes, mount)
					}
				}
			}
		}
		cf.Services = append(cf.Services, svc)
	}
	return cf, nil
}

// parseVolume converts one volume entry node into a VolumeMount.
func parseVolume(node *yaml.Node) (VolumeMount, bool) {
	switch node.Kind {
	case yaml.ScalarNode:
		parts := strings.Split(node.Value, ":")
		if len(parts) < 2 {
			return VolumeMount{}, false
		}
		return VolumeMount{Source: parts[0], Target: parts[1]}, true
	case yaml.MappingNode:
		var mount VolumeMount
		if n := mappingValue(node, "source"); n != nil {
			mount.Source = n.Value
		}
		if n := mappingValue(node, "target"); n != nil {
			mount.Target = n.Value
		}
		if mount.Source == "" || mount.Target == "" {
			return VolumeMount{}, false
		}
		return mount, true
	}
	return VolumeMount{}, false
}

// documentRoot unwraps the document node yaml.v3 places at the top.
func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	if doc.Kind == 0 {
		return nil
	}
	return doc
}

// mappingValue returns the value node for key inside a mapping node.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
