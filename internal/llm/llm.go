package llm

import (
	"context"
	"errors"
	"fmt"
)

// Client is a text-completion service: one system instruction, one prompt,
// one text answer.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ErrorKind classifies why a completion failed.
type ErrorKind int

const (
	// KindTransport covers network failures and non-auth API errors.
	KindTransport ErrorKind = iota
	// KindAuth means the service rejected our credentials.
	KindAuth
	// KindMalformed means the call succeeded but the response had no usable text.
	KindMalformed
	// KindCanceled means the caller's context ended first.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindMalformed:
		return "malformed"
	case KindCanceled:
		return "canceled"
	default:
		return "transport"
	}
}

// CompletionError is returned by every Client implementation on failure.
type CompletionError struct {
	Kind ErrorKind
	Err  error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion %s error: %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// KindOf reports the kind of a completion failure; errors that are not
// CompletionErrors count as transport failures.
func KindOf(err error) ErrorKind {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindTransport
}
