// Package model provides domain types shared across packages.
package model

import (
	"fmt"
	"strings"
)

// Operation is one of the three dispatch operations a backend can serve.
type Operation string

const (
	OpChat       Operation = "chat"
	OpCompletion Operation = "completion"
	OpEmbedding  Operation = "embeddings"
)

// ParseOperation parses an operation name. Empty input means chat.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chat":
		return OpChat, nil
	case "completion", "complete":
		return OpCompletion, nil
	case "embeddings", "embedding", "embed":
		return OpEmbedding, nil
	default:
		return "", Errorf(KindConfiguration, "unknown mode %q", s)
	}
}

// ProviderRef names a backend and a model, written "backend:model".
// The model part may itself contain colons (Bedrock ids do).
type ProviderRef struct {
	Backend string
	Model   string
}

// ParseProviderRef parses "backend:model" or a bare "backend".
func ParseProviderRef(s string) (ProviderRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ProviderRef{}, Errorf(KindConfiguration, "empty provider reference")
	}
	backend, modelID, _ := strings.Cut(s, ":")
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		return ProviderRef{}, Errorf(KindConfiguration, "provider reference %q has no backend", s)
	}
	return ProviderRef{Backend: backend, Model: strings.TrimSpace(modelID)}, nil
}

// String returns the canonical "backend:model" form.
func (r ProviderRef) String() string {
	if r.Model == "" {
		return r.Backend
	}
	return fmt.Sprintf("%s:%s", r.Backend, r.Model)
}

// IsZero reports whether the reference is unset.
func (r ProviderRef) IsZero() bool {
	return r.Backend == "" && r.Model == ""
}
