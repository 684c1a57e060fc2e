package capability

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/richinex/llmchain/model"
)

// Resolution is a record together with where it came from.
type Resolution struct {
	Record Record
	// Source is the layer that answered: "builtin", a file path, or "inline[n]".
	Source string
	// Key is the lookup key that matched.
	Key string
	// ID is the parsed identifier that was queried.
	ID ModelID
}

// Registry answers capability queries. It is immutable once built and safe
// for concurrent readers.
type Registry struct {
	// layers[0] is the built-in layer; later layers take precedence.
	layers []layer
}

// Builder accumulates override layers. Sources are applied in call order:
// each later source overrides earlier ones for the same identifier.
type Builder struct {
	layers  []layer
	inlines int
	err     error
}

// NewBuilder starts a registry with the built-in layer.
func NewBuilder() *Builder {
	return &Builder{
		layers: []layer{{source: BuiltinSource, records: builtinIndex}},
	}
}

// LoadFile reads one override file and pushes it as a new layer.
func (b *Builder) LoadFile(path string) *Builder {
	if b.err != nil {
		return b
	}
	data, err := os.ReadFile(path)
	if err != nil {
		b.err = model.Wrap(model.KindConfiguration, err, "read override file %s", path)
		return b
	}
	return b.push(path, data)
}

// LoadInline parses override text and pushes it as a new layer.
func (b *Builder) LoadInline(text string) *Builder {
	if b.err != nil {
		return b
	}
	b.inlines++
	return b.push(fmt.Sprintf("inline[%d]", b.inlines), []byte(text))
}

// Add pushes an already-decoded set of records as a layer.
func (b *Builder) Add(source string, records ...Record) *Builder {
	if b.err != nil {
		return b
	}
	l := layer{source: source, records: make(map[string]Record, len(records))}
	for _, r := range records {
		if r.Name == "" {
			b.err = model.Errorf(model.KindConfiguration, "override source %s: missing required field \"name\"", source)
			return b
		}
		l.records[r.Name] = r
	}
	b.layers = append(b.layers, l)
	return b
}

func (b *Builder) push(source string, data []byte) *Builder {
	l, err := parseOverrides(source, data)
	if err != nil {
		b.err = err
		return b
	}
	b.layers = append(b.layers, l)
	return b
}

// Build returns the registry, or the first configuration error encountered.
func (b *Builder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	layers := make([]layer, len(b.layers))
	copy(layers, b.layers)
	return &Registry{layers: layers}, nil
}

// Default returns a registry holding only the built-in layer.
func Default() *Registry {
	return &Registry{layers: []layer{{source: BuiltinSource, records: builtinIndex}}}
}

// Lookup resolves id to its record, searching layers newest first and
// trying every candidate key within a layer before falling to the next.
func (r *Registry) Lookup(id string) (Resolution, error) {
	parsed := ParseModelID(id)
	keys := parsed.Keys()
	for i := len(r.layers) - 1; i >= 0; i-- {
		l := r.layers[i]
		for _, k := range keys {
			if rec, ok := l.records[k]; ok {
				return Resolution{Record: rec, Source: l.source, Key: k, ID: parsed}, nil
			}
		}
	}
	return Resolution{ID: parsed}, model.Errorf(model.KindUnknownModel, "no capability record for %q", id).
		WithBackend("", id)
}

// CapabilitiesOf returns the record for id.
func (r *Registry) CapabilitiesOf(id string) (Record, error) {
	res, err := r.Lookup(id)
	if err != nil {
		return Record{}, err
	}
	return res.Record, nil
}

// Require fails unless id resolves and grants every capability in caps.
func (r *Registry) Require(id string, caps ...Capability) error {
	rec, err := r.CapabilitiesOf(id)
	if err != nil {
		return err
	}
	var missing []string
	for _, c := range caps {
		if !rec.Supports(c) {
			missing = append(missing, c.String())
		}
	}
	if len(missing) > 0 {
		return model.Errorf(model.KindUnsupportedOperation, "model %q does not support %s",
			id, strings.Join(missing, ", ")).WithBackend("", id)
	}
	return nil
}

// Models lists every identifier known to any layer, sorted.
func (r *Registry) Models() []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range r.layers {
		for _, name := range l.names() {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Sources lists layer names from lowest to highest precedence.
func (r *Registry) Sources() []string {
	out := make([]string, len(r.layers))
	for i, l := range r.layers {
		out[i] = l.source
	}
	return out
}
