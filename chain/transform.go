package chain

import (
	"strings"

	"github.com/richinex/llmchain/internal/json"
	"github.com/richinex/llmchain/model"
)

// Transform names a post-processing applied to a dispatched response.
// Supplied responses are bound verbatim.
type Transform string

const (
	TransformNone Transform = ""
	// TransformTrim strips surrounding whitespace.
	TransformTrim Transform = "trim"
	// TransformJSON keeps only the JSON document in the response.
	TransformJSON Transform = "json"
	// TransformThink keeps only the reasoning inside <think>...</think>.
	TransformThink Transform = "think"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

func (t Transform) valid() bool {
	switch t {
	case TransformNone, TransformTrim, TransformJSON, TransformThink:
		return true
	}
	return false
}

// Apply returns the transformed response.
func (t Transform) Apply(response string) (string, error) {
	switch t {
	case TransformNone:
		return response, nil
	case TransformTrim:
		return strings.TrimSpace(response), nil
	case TransformJSON:
		doc, err := json.Extract(response)
		if err != nil {
			return "", model.Wrap(model.KindTranslation, err, "transform response")
		}
		return doc, nil
	case TransformThink:
		return thinking(response), nil
	}
	return "", model.Errorf(model.KindConfiguration, "unknown transform %q", string(t))
}

// thinking returns the non-empty trimmed lines between the first think tags.
// A response without an opening tag yields "".
func thinking(response string) string {
	_, body, ok := strings.Cut(response, thinkOpen)
	if !ok {
		return ""
	}
	body, _, _ = strings.Cut(body, thinkClose)

	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
