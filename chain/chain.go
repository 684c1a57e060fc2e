// Chain definitions and their validation.
//
// Information Hiding:
// - YAML/JSON decoding of chain files
// - Structural checks run before any step executes

package chain

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/richinex/llmchain/model"
	"gopkg.in/yaml.v3"
)

// DefaultInputVar names the variable bound to the run input when the chain
// does not set one.
const DefaultInputVar = "input"

// Chain is an ordered sequence of templated steps sharing one namespace.
type Chain struct {
	Name            string            `yaml:"name" json:"name"`
	Description     string            `yaml:"description,omitempty" json:"description,omitempty"`
	DefaultProvider string            `yaml:"default_provider,omitempty" json:"default_provider,omitempty"`
	InputVar        string            `yaml:"input_var,omitempty" json:"input_var,omitempty"`
	Steps           []Step            `yaml:"steps" json:"steps"`
	Interactive     InteractiveConfig `yaml:"interactive,omitempty" json:"interactive,omitempty"`
}

// Step is one templated invocation.
type Step struct {
	ID          string   `yaml:"id" json:"id"`
	Template    string   `yaml:"template" json:"template"`
	Provider    string   `yaml:"provider,omitempty" json:"provider,omitempty"`
	Mode        string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	Temperature *float32 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   *uint32  `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Condition   string   `yaml:"condition,omitempty" json:"condition,omitempty"`
	Interactive bool     `yaml:"interactive,omitempty" json:"interactive,omitempty"`
	// Transform post-processes dispatched responses before binding.
	Transform Transform `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// InteractiveConfig holds chain-level interactive defaults.
type InteractiveConfig struct {
	// AutoStart enables interactive mode without a CLI flag.
	AutoStart bool `yaml:"auto_start,omitempty" json:"auto_start,omitempty"`
	// DefaultSteps pause when interactive mode is enabled.
	DefaultSteps []string `yaml:"default_steps,omitempty" json:"default_steps,omitempty"`
	// SavePath is where the CLI writes the session history.
	SavePath string `yaml:"save_path,omitempty" json:"save_path,omitempty"`
}

// Load reads a chain file. JSON is accepted since it is valid YAML.
func Load(path string) (*Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.Wrap(model.KindConfiguration, err, "read chain file %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a chain definition. Unknown fields are rejected.
func Parse(data []byte) (*Chain, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Chain
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, model.Errorf(model.KindConfiguration, "empty chain definition")
		}
		return nil, model.Wrap(model.KindConfiguration, err, "decode chain")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Marshal encodes the chain as YAML.
func (c *Chain) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode chain: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode chain: %w", err)
	}
	return buf.Bytes(), nil
}

// InputName returns the variable the run input is bound to.
func (c *Chain) InputName() string {
	if c.InputVar == "" {
		return DefaultInputVar
	}
	return c.InputVar
}

// Validate checks step ids, modes, provider references and conditions.
// A condition may only reference an earlier step, the input variable or a
// system variable.
func (c *Chain) Validate() error {
	if len(c.Steps) == 0 {
		return model.Errorf(model.KindConfiguration, "chain %q has no steps", c.Name)
	}
	if c.DefaultProvider != "" {
		if _, err := model.ParseProviderRef(c.DefaultProvider); err != nil {
			return err
		}
	}

	input := c.InputName()
	if IsSystemName(input) {
		return model.Errorf(model.KindConfiguration, "input variable %q collides with system variables", input)
	}
	declared := map[string]bool{input: true}

	for i, step := range c.Steps {
		if strings.TrimSpace(step.ID) == "" {
			return model.Errorf(model.KindConfiguration, "step %d has no id", i+1)
		}
		if IsSystemName(step.ID) {
			return model.Errorf(model.KindConfiguration, "step id %q collides with system variables", step.ID).WithStep(step.ID)
		}
		if declared[step.ID] {
			return model.Errorf(model.KindConfiguration, "duplicate step id %q", step.ID).WithStep(step.ID)
		}
		if _, err := step.Operation(); err != nil {
			return withStep(err, step.ID)
		}
		if !step.Transform.valid() {
			return model.Errorf(model.KindConfiguration, "unknown transform %q", step.Transform).WithStep(step.ID)
		}
		if step.Provider != "" {
			if _, err := model.ParseProviderRef(step.Provider); err != nil {
				return withStep(err, step.ID)
			}
		}
		if step.Condition != "" {
			cond, err := ParseCondition(step.Condition)
			if err != nil {
				return withStep(err, step.ID)
			}
			if !declared[cond.Name] && !IsSystemName(cond.Name) {
				return model.Errorf(model.KindConfiguration,
					"condition references %q which is not an earlier step", cond.Name).WithStep(step.ID)
			}
		}
		declared[step.ID] = true
	}

	for _, id := range c.Interactive.DefaultSteps {
		if c.StepIndex(id) < 0 {
			return model.Errorf(model.KindConfiguration, "interactive default step %q does not exist", id)
		}
	}
	return nil
}

// Lint reports template references that cannot be bound when the step
// runs. They are not errors: a step guarded by a condition may never run.
func (c *Chain) Lint() []string {
	var warnings []string
	declared := map[string]bool{c.InputName(): true}
	for _, step := range c.Steps {
		for _, name := range References(step.Template) {
			if !declared[name] && !IsSystemName(name) {
				warnings = append(warnings, fmt.Sprintf("step %q references %q before it is bound", step.ID, name))
			}
		}
		declared[step.ID] = true
	}
	return warnings
}

// StepIndex returns the position of the step with id, or -1.
func (c *Chain) StepIndex(id string) int {
	for i, s := range c.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Operation returns the dispatch operation for the step mode.
func (s Step) Operation() (model.Operation, error) {
	op, err := model.ParseOperation(s.Mode)
	if err != nil {
		return "", err
	}
	if op == model.OpEmbedding {
		return "", model.Errorf(model.KindConfiguration, "mode %q cannot produce text", s.Mode)
	}
	return op, nil
}

func withStep(err error, stepID string) error {
	if e, ok := model.AsError(err); ok {
		return e.WithStep(stepID)
	}
	return err
}
