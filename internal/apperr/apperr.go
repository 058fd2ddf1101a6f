// Package apperr defines the closed set of failure kinds surfaced by jobs and the HTTP API.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnexpected is anything not classified below. It is the zero value.
	KindUnexpected Kind = iota
	// KindValidation marks missing or malformed request fields. Never retried.
	KindValidation
	// KindExternalTool marks a nonzero exit or failure of terraform, helm or the cluster API.
	KindExternalTool
	// KindSecretStore marks a failed secret store round trip.
	KindSecretStore
	// KindTimeout marks an operation that exceeded its deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExternalTool:
		return "external_tool"
	case KindSecretStore:
		return "secret_store"
	case KindTimeout:
		return "timeout"
	default:
		return "unexpected"
	}
}

// Error carries a Kind together with the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// JoinMessages renders aggregated errors on one line, separated by "; ".
// It matches multierror.ErrorFormatFunc.
func JoinMessages(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validation builds a validation error from a format string.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// ExternalTool wraps a failure of an external tool. Deadline errors become KindTimeout.
func ExternalTool(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return E(KindTimeout, op, err)
	}
	return E(KindExternalTool, op, err)
}

// SecretStore wraps a secret store failure.
func SecretStore(op string, err error) error {
	return E(KindSecretStore, op, err)
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnexpected
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnexpected
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// Code converts err to the numeric result code used in deployment results: 0 for success, 1 otherwise.
func Code(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
