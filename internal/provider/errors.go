package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorKind classifies provider failures so callers can pick a retry
// policy per class.
type ErrorKind string

const (
	// KindNotConfigured means the provider is missing a credential or
	// required setting; fatal before any call is attempted.
	KindNotConfigured ErrorKind = "not_configured"
	// KindTransport covers connection failures and other I/O errors.
	KindTransport ErrorKind = "transport"
	// KindTimeout means the call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindAPI means the upstream answered with a non-success status.
	KindAPI ErrorKind = "api"
	// KindRateLimited means the manager refused the call because the
	// provider's request window is full.
	KindRateLimited ErrorKind = "rate_limited"
)

// Error wraps a provider failure with its origin and classification.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a provider timeout. The evolution
// loop retries timeouts once before counting an iteration, which it must
// not do for ordinary failures. An AllProvidersFailedError counts as a
// timeout only when every provider in it timed out.
func IsTimeout(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindTimeout
	}
	var all *AllProvidersFailedError
	if errors.As(err, &all) && len(all.LastErrors) > 0 {
		for _, last := range all.LastErrors {
			if !IsTimeout(last) {
				return false
			}
		}
		return true
	}
	return false
}

// IsNotConfigured reports whether err marks an unconfigured provider,
// or an AllProvidersFailedError in which every provider was
// unconfigured. The CLI maps this to its configuration-error exit code.
func IsNotConfigured(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindNotConfigured
	}
	var all *AllProvidersFailedError
	if errors.As(err, &all) && len(all.LastErrors) > 0 {
		for _, last := range all.LastErrors {
			if !IsNotConfigured(last) {
				return false
			}
		}
		return true
	}
	return false
}

// wrapErr classifies an arbitrary failure from a provider call. Deadline
// expiry becomes KindTimeout, everything else KindTransport.
func wrapErr(name string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	kind := KindTransport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Provider: name, Kind: kind, Err: err}
}

// AllProvidersFailedError reports that every configured provider was
// exhausted for one generation request.
type AllProvidersFailedError struct {
	// LastErrors maps each provider name to the last error it returned.
	LastErrors map[string]error
	// MinWait is the shortest time until any rate-limited provider frees
	// up; zero when no provider was rate-limited.
	MinWait time.Duration
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.LastErrors))
	for name, err := range e.LastErrors {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	sort.Strings(parts)
	msg := "all providers failed: " + strings.Join(parts, "; ")
	if e.MinWait > 0 {
		msg += fmt.Sprintf(" (earliest rate limit reset in %s)", e.MinWait.Round(time.Millisecond))
	}
	return msg
}
