package snapshot

import (
	"errors"
	"fmt"
)

// Kind classifies fetch failures.
type Kind string

const (
	KindSourceEmpty           Kind = "SourceEmpty"
	KindSourceUnavailable     Kind = "SourceUnavailable"
	KindMissingOrderingColumn Kind = "MissingOrderingColumn"
	KindFetchTimeout          Kind = "FetchTimeout"
	KindConfiguration         Kind = "ConfigurationError"
)

// Sentinels for errors.Is.
var (
	ErrSourceEmpty           = &Error{Kind: KindSourceEmpty}
	ErrSourceUnavailable     = &Error{Kind: KindSourceUnavailable}
	ErrMissingOrderingColumn = &Error{Kind: KindMissingOrderingColumn}
	ErrFetchTimeout          = &Error{Kind: KindFetchTimeout}
	ErrConfiguration         = &Error{Kind: KindConfiguration}
)

// Error is a snapshot failure of a given kind.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError builds an error of the given kind.
func NewError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a snapshot error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ConfigError wraps a configuration problem detected before any fetch.
func ConfigError(format string, args ...any) error {
	return NewError(KindConfiguration, nil, format, args...)
}
