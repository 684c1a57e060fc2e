package capability

import (
	"fmt"
	"sort"

	"github.com/richinex/llmchain/model"
	"gopkg.in/yaml.v3"
)

// recordFields are the keys accepted on an override record.
var recordFields = map[string]bool{
	"name":              true,
	"completion":        true,
	"chat":              true,
	"embeddings":        true,
	"vision":            true,
	"tool_use":          true,
	"streaming":         true,
	"context_window":    true,
	"max_output_tokens": true,
}

// layer is one precedence level of the registry.
type layer struct {
	source  string
	records map[string]Record
}

func (l layer) names() []string {
	seen := make(map[string]bool, len(l.records))
	var out []string
	for _, r := range l.records {
		if !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r.Name)
		}
	}
	sort.Strings(out)
	return out
}

// parseOverrides decodes one override source (YAML or JSON).
//
// Accepted shapes:
//
//	- name: gpt-4o          # top-level sequence
//	  chat: true
//
//	model:                  # or "models", as a sequence
//	  - name: gpt-4o
//
//	models:                 # or "models" keyed by identifier
//	  gpt-4o: {chat: true}
func parseOverrides(source string, data []byte) (layer, error) {
	l := layer{source: source, records: map[string]Record{}}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return l, model.Wrap(model.KindConfiguration, err, "override source %s", source)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return l, nil
	}

	var records []Record
	var err error
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		records, err = decodeSequence(source, root)
	case yaml.MappingNode:
		records, err = decodeWrapped(source, root)
	default:
		err = model.Errorf(model.KindConfiguration,
			"override source %s: expected a list of records (line %d)", source, root.Line)
	}
	if err != nil {
		return l, err
	}

	for _, r := range records {
		l.records[r.Name] = r
	}
	// ARN names are also reachable with the account segment cleared.
	for _, r := range records {
		if normalized, ok := NormalizeARN(r.Name); ok {
			if _, exists := l.records[normalized]; !exists {
				l.records[normalized] = l.records[r.Name]
			}
		}
	}
	return l, nil
}

func decodeWrapped(source string, root *yaml.Node) ([]Record, error) {
	var out []Record
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "model", "models":
		default:
			return nil, model.Errorf(model.KindConfiguration,
				"override source %s: unknown top-level key %q (line %d)", source, key.Value, key.Line)
		}

		var records []Record
		var err error
		switch value.Kind {
		case yaml.SequenceNode:
			records, err = decodeSequence(source, value)
		case yaml.MappingNode:
			records, err = decodeKeyed(source, value)
		default:
			err = model.Errorf(model.KindConfiguration,
				"override source %s: %q must be a list or a mapping (line %d)", source, key.Value, value.Line)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func decodeSequence(source string, seq *yaml.Node) ([]Record, error) {
	out := make([]Record, 0, len(seq.Content))
	for i, node := range seq.Content {
		r, err := decodeRecord(source, node, "")
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeKeyed(source string, m *yaml.Node) ([]Record, error) {
	out := make([]Record, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		r, err := decodeRecord(source, m.Content[i+1], m.Content[i].Value)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", m.Content[i].Value, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeRecord(source string, node *yaml.Node, name string) (Record, error) {
	if node.Kind != yaml.MappingNode {
		return Record{}, model.Errorf(model.KindConfiguration,
			"override source %s: record must be a mapping (line %d)", source, node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !recordFields[key.Value] {
			return Record{}, model.Errorf(model.KindConfiguration,
				"override source %s: unknown field %q (line %d)", source, key.Value, key.Line)
		}
	}

	var r Record
	if err := node.Decode(&r); err != nil {
		return Record{}, model.Wrap(model.KindConfiguration, err, "override source %s", source)
	}
	if r.Name == "" {
		r.Name = name
	}
	if r.Name == "" {
		return Record{}, model.Errorf(model.KindConfiguration,
			"override source %s: missing required field \"name\" (line %d)", source, node.Line)
	}
	return r, nil
}
