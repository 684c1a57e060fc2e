// Error taxonomy shared by the registry, the backends and the chain engine.
//
// Information Hiding:
// - Kind classification and retryability decided in one place
// - Step and backend identity attached without re-wrapping chains
// - Sentinel matching via errors.Is on kind only

package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failure.
type ErrorKind string

const (
	// KindUnknownModel means the identifier resolved to no capability record.
	KindUnknownModel ErrorKind = "unknown_model"
	// KindUnsupportedOperation means the model lacks a required capability.
	KindUnsupportedOperation ErrorKind = "unsupported_operation"
	// KindConfiguration means a malformed override source, chain file or setting.
	KindConfiguration ErrorKind = "configuration_error"
	// KindTranslation means a request or response could not be mapped to or from the wire shape.
	KindTranslation ErrorKind = "translation_error"
	// KindTransport means a network or timeout failure talking to a provider.
	KindTransport ErrorKind = "transport_failure"
	// KindUnresolvedVariable means a template or condition referenced an unbound name.
	KindUnresolvedVariable ErrorKind = "unresolved_variable"
	// KindCancelled means the run was cancelled by the caller.
	KindCancelled ErrorKind = "cancelled"
)

// Error is the typed failure returned across package boundaries.
type Error struct {
	Kind      ErrorKind
	Message   string
	StepID    string
	Backend   string
	Model     string
	Retryable bool
	Err       error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrUnknownModel         = &Error{Kind: KindUnknownModel}
	ErrUnsupportedOperation = &Error{Kind: KindUnsupportedOperation}
	ErrConfiguration        = &Error{Kind: KindConfiguration}
	ErrTranslation          = &Error{Kind: KindTranslation}
	ErrTransport            = &Error{Kind: KindTransport}
	ErrUnresolvedVariable   = &Error{Kind: KindUnresolvedVariable}
	ErrCancelled            = &Error{Kind: KindCancelled}
)

// Errorf creates an error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
// Transport failures are marked retryable.
func Wrap(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: kind == KindTransport,
		Err:       err,
	}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	var attrs []string
	if e.StepID != "" {
		attrs = append(attrs, "step="+e.StepID)
	}
	if e.Backend != "" {
		attrs = append(attrs, "backend="+e.Backend)
	}
	if e.Model != "" {
		attrs = append(attrs, "model="+e.Model)
	}
	if len(attrs) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(attrs, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// WithStep returns a copy tagged with the step id. An existing tag is kept.
func (e *Error) WithStep(stepID string) *Error {
	c := *e
	if c.StepID == "" {
		c.StepID = stepID
	}
	return &c
}

// WithBackend returns a copy tagged with the backend identity. Existing tags are kept.
func (e *Error) WithBackend(backend, model string) *Error {
	c := *e
	if c.Backend == "" {
		c.Backend = backend
	}
	if c.Model == "" {
		c.Model = model
	}
	return &c
}

// AsError extracts the first *Error in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err carries no *Error.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err is a transport failure marked retryable.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindTransport && e.Retryable
}
