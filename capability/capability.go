// Package capability resolves model identifiers to their supported operations and limits.
//
// Information Hiding:
// - Built-in capability table per model identifier
// - Override layers loaded from files or inline text
// - Bedrock cross-region identifier normalisation

package capability

import (
	"fmt"
	"strings"

	"github.com/richinex/llmchain/model"
)

// Capability is a single boolean property of a model.
type Capability int

const (
	// Completion is single-prompt text completion.
	Completion Capability = iota
	// Chat is multi-turn conversation.
	Chat
	// Embeddings is vector embedding generation.
	Embeddings
	// Vision is image understanding in chat input.
	Vision
	// ToolUse is function/tool calling.
	ToolUse
	// Streaming is incremental response delivery.
	Streaming
)

// All lists every capability in declaration order.
var All = []Capability{Completion, Chat, Embeddings, Vision, ToolUse, Streaming}

// String returns the override-file field name of the capability.
func (c Capability) String() string {
	switch c {
	case Completion:
		return "completion"
	case Chat:
		return "chat"
	case Embeddings:
		return "embeddings"
	case Vision:
		return "vision"
	case ToolUse:
		return "tool_use"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// ParseCapability parses a capability name as written in override files.
func ParseCapability(s string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completion":
		return Completion, nil
	case "chat":
		return Chat, nil
	case "embeddings", "embedding":
		return Embeddings, nil
	case "vision":
		return Vision, nil
	case "tool_use", "tools":
		return ToolUse, nil
	case "streaming":
		return Streaming, nil
	default:
		return 0, model.Errorf(model.KindConfiguration, "unknown capability %q", s)
	}
}

// ForOperation maps a dispatch operation to the capability it needs.
func ForOperation(op model.Operation) Capability {
	switch op {
	case model.OpCompletion:
		return Completion
	case model.OpEmbedding:
		return Embeddings
	default:
		return Chat
	}
}

// Record is the capability set of one model identifier.
// Absent boolean fields in an override source decode to false.
type Record struct {
	Name            string `yaml:"name" json:"name"`
	Completion      bool   `yaml:"completion" json:"completion"`
	Chat            bool   `yaml:"chat" json:"chat"`
	Embeddings      bool   `yaml:"embeddings" json:"embeddings"`
	Vision          bool   `yaml:"vision" json:"vision"`
	ToolUse         bool   `yaml:"tool_use" json:"tool_use"`
	Streaming       bool   `yaml:"streaming" json:"streaming"`
	ContextWindow   int    `yaml:"context_window" json:"context_window"`
	MaxOutputTokens int    `yaml:"max_output_tokens" json:"max_output_tokens"`
}

// Supports reports whether the record grants c.
func (r Record) Supports(c Capability) bool {
	switch c {
	case Completion:
		return r.Completion
	case Chat:
		return r.Chat
	case Embeddings:
		return r.Embeddings
	case Vision:
		return r.Vision
	case ToolUse:
		return r.ToolUse
	case Streaming:
		return r.Streaming
	default:
		return false
	}
}

// Capabilities returns the granted capabilities in declaration order.
func (r Record) Capabilities() []Capability {
	var out []Capability
	for _, c := range All {
		if r.Supports(c) {
			out = append(out, c)
		}
	}
	return out
}
