// Package errs defines the typed error kinds surfaced by the ingestion and
// analytics pipeline. Wrapped causes stay reachable through errors.Unwrap.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors.
type Kind string

const (
	InvalidAddress      Kind = "invalid_address"
	ProviderUnavailable Kind = "provider_unavailable"
	ProviderRateLimited Kind = "provider_rate_limited"
	ProviderTimeout     Kind = "provider_timeout"
	ProviderMalformed   Kind = "provider_malformed"
	StoreConflict       Kind = "store_conflict"
	StoreCorrupt        Kind = "store_corrupt"
	Cancelled           Kind = "cancelled"
)

// Error carries a kind, a human-readable message, and the wallet address the
// failure relates to (empty when not wallet-scoped).
type Error struct {
	Kind    Kind
	Address string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s: %s (wallet %s)", e.Kind, e.Message, e.Address)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error without a cause.
func New(kind Kind, address, message string) *Error {
	return &Error{Kind: kind, Address: address, Message: message}
}

// Wrap builds an Error around a cause.
func Wrap(kind Kind, address, message string, cause error) *Error {
	return &Error{Kind: kind, Address: address, Message: message, Cause: cause}
}

// KindOf extracts the kind from err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether a later attempt could succeed. Workers requeue
// only these failures; everything else would fail identically next time.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ProviderUnavailable, ProviderRateLimited, ProviderTimeout:
		return true
	}
	return false
}
