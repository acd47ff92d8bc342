package service

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError marks bad input caught before any network call. Never
// retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ResolutionError marks a media reference that could not be turned into bytes
// or a usable URL.
type ResolutionError struct {
	Ref string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve media %q: %v", e.Ref, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ProviderError is a non-2xx reply from the external publisher. The message is
// formatted "<status> <body>" so log lines read like the raw exchange.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

// PlatformError is one direct adapter's failure for one platform. Collected
// per platform, never fatal to siblings.
type PlatformError struct {
	Platform string
	Err      error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %v", e.Platform, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// ErrCredentialNotFound is returned when no credential is stored for a
// (brand, platform) pair. Callers treat it as a per-platform failure.
var ErrCredentialNotFound = errors.New("no credential stored for platform")

// retryable reports whether the generic retry policy may re-attempt after err.
// 400/401/404 are request- or auth-shape errors, not transient, and are never
// retried. Validation and resolution failures are terminal by definition.
func retryable(err error) bool {
	var ve *ValidationError
	var re *ResolutionError
	if errors.As(err, &ve) || errors.As(err, &re) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.StatusCode {
		case 400, 401, 404:
			return false
		}
		return true
	}
	// Errors that crossed a formatting boundary still carry the status code
	// in their text.
	msg := err.Error()
	for _, code := range []string{"400", "401", "404"} {
		if strings.Contains(msg, code) {
			return false
		}
	}
	return true
}
