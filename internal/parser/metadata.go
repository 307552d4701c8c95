package parser

import (
	"strconv"
	"strings"

	"github.com/agentic-research/cspec/internal/graph"
	"github.com/agentic-research/cspec/internal/varset"
)

type metaSetter func(m *graph.Metadata, value string) error

var metadataKeys = map[string]metaSetter{
	"title":           func(m *graph.Metadata, v string) error { m.Title = v; return nil },
	"subtitle":        func(m *graph.Metadata, v string) error { m.Subtitle = v; return nil },
	"product":         func(m *graph.Metadata, v string) error { m.Product = v; return nil },
	"version":         func(m *graph.Metadata, v string) error { m.Version = v; return nil },
	"edition":         func(m *graph.Metadata, v string) error { m.Edition = v; return nil },
	"dtd":             func(m *graph.Metadata, v string) error { m.DTD = v; return nil },
	"checksum":        func(m *graph.Metadata, v string) error { m.Checksum = v; return nil },
	"createdby":       func(m *graph.Metadata, v string) error { m.CreatedBy = v; return nil },
	"copyrightholder": func(m *graph.Metadata, v string) error { m.CopyrightHolder = v; return nil },
	"brand":           func(m *graph.Metadata, v string) error { m.Brand = v; return nil },
	"description":     func(m *graph.Metadata, v string) error { m.Description = v; return nil },
	"id": func(m *graph.Metadata, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		m.ID = n
		return nil
	},
}

// metadataKey normalises "Copyright Holder" to "copyrightholder".
func metadataKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// IsMetadataKey reports whether key names a document-level metadata field.
func IsMetadataKey(key string) bool {
	_, ok := metadataKeys[metadataKey(key)]
	return ok
}

// parseMetadata handles a "Key = Value" header line. It reports false when the
// line is not metadata, leaving it to the node parsers.
func (p *Parser) parseMetadata(num int, trimmed string) bool {
	eq := varset.IndexUnescaped(trimmed, '=', 0)
	if eq <= 0 {
		return false
	}
	set, ok := metadataKeys[metadataKey(trimmed[:eq])]
	if !ok {
		return false
	}
	value := strings.TrimSpace(varset.Unescape(trimmed[eq+1:]))
	if err := set(&p.spec.Meta, value); err != nil {
		p.errorf(num, "invalid value %q for %s", value, strings.TrimSpace(trimmed[:eq]))
	}
	return true
}
