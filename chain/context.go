// ExecutionContext - the working memory of one chain run.
//
// Information Hiding:
// - Storage of bindings and their insertion order
// - The write-once rule per name

package chain

import (
	"github.com/richinex/llmchain/model"
)

// ExecutionContext maps variable names to values. A name is written at most
// once. It is owned by a single Run and is not safe for concurrent writers.
type ExecutionContext struct {
	values map[string]string
	order  []string
}

// NewExecutionContext returns an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{values: make(map[string]string)}
}

// Bind records value under name. Rebinding a name is rejected.
func (c *ExecutionContext) Bind(name, value string) error {
	if _, exists := c.values[name]; exists {
		return model.Errorf(model.KindConfiguration, "variable %q already bound", name)
	}
	c.values[name] = value
	c.order = append(c.order, name)
	return nil
}

// Lookup returns the value bound to name.
func (c *ExecutionContext) Lookup(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Names returns bound names in binding order.
func (c *ExecutionContext) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of bindings.
func (c *ExecutionContext) Len() int { return len(c.order) }

// Snapshot returns a copy of the bindings.
func (c *ExecutionContext) Snapshot() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
