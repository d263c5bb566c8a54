// Package delivery wraps outbound sends with bounded retry, backoff,
// and failure classification.
package delivery

import (
	"errors"
	"fmt"
)

// FailureKind classifies a delivery failure. Adapters translate
// platform-specific errors into this taxonomy before anything crosses
// into the retry queue; platform exception types never leak past an
// adapter boundary.
type FailureKind string

const (
	// KindTransient failures (network, HTTP 5xx, rate limit) are
	// retried with backoff.
	KindTransient FailureKind = "transient"
	// KindPermissionDenied is terminal: the recipient refuses delivery.
	KindPermissionDenied FailureKind = "permission_denied"
	// KindUnknownRecipient is terminal: the target does not exist.
	KindUnknownRecipient FailureKind = "unknown_recipient"
	// KindTerminal covers other non-retryable failures.
	KindTerminal FailureKind = "terminal"
)

// Retryable reports whether the kind is retried.
func (k FailureKind) Retryable() bool {
	return k == KindTransient
}

// Error is a classified delivery failure.
type Error struct {
	Kind FailureKind
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

// PermissionDenied wraps err as a terminal permission failure.
func PermissionDenied(err error) error {
	return &Error{Kind: KindPermissionDenied, Err: err}
}

// UnknownRecipient wraps err as a terminal unknown-recipient failure.
func UnknownRecipient(err error) error {
	return &Error{Kind: KindUnknownRecipient, Err: err}
}

// Terminal wraps err as a non-retryable failure.
func Terminal(err error) error {
	return &Error{Kind: KindTerminal, Err: err}
}

// Classify extracts the failure kind from an error. Unclassified errors
// count as transient so an adapter that misses a case degrades to
// bounded retries rather than silent drops.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}
