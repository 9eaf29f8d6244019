package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrMetadataIncomplete = errors.New("metadata extraction incomplete")
	ErrInvalidEnvelope    = errors.New("invalid queue envelope")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInsufficientCredit = errors.New("insufficient credits")
	ErrInvalidRequest     = errors.New("invalid story request")
)

// ProviderErrorKind is the closed set of provider failure classes.
type ProviderErrorKind int

const (
	ProviderErrorGeneric ProviderErrorKind = iota
	ProviderErrorQuotaExceeded
	ProviderErrorAuthInvalid
)

func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderErrorQuotaExceeded:
		return "quota_exceeded"
	case ProviderErrorAuthInvalid:
		return "auth_invalid"
	default:
		return "generic"
	}
}

// ProviderError is returned by stage collaborators when a remote provider
// call fails. Kind is decided once, at the provider boundary.
type ProviderError struct {
	Provider   string
	Kind       ProviderErrorKind
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	return b.String()
}

var quotaCodes = map[string]struct{}{
	"insufficient_quota":   {},
	"rate_limit_exceeded":  {},
	"resource_exhausted":   {},
	"quota_exceeded":       {},
	"throttling.ratequota": {},
}

var authCodes = map[string]struct{}{
	"invalid_api_key": {},
	"unauthenticated": {},
	"invalidapikey":   {},
}

// NewProviderError classifies a failed provider call by HTTP status and API
// error code.
func NewProviderError(provider string, statusCode int, code, message string) *ProviderError {
	kind := ProviderErrorGeneric
	normalized := strings.ToLower(strings.TrimSpace(code))
	_, quota := quotaCodes[normalized]
	_, auth := authCodes[normalized]
	switch {
	case statusCode == http.StatusTooManyRequests || quota:
		kind = ProviderErrorQuotaExceeded
	case statusCode == http.StatusUnauthorized || auth:
		kind = ProviderErrorAuthInvalid
	}
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: statusCode,
		Code:       code,
		Message:    strings.TrimSpace(message),
	}
}

// IsQuotaExceeded reports whether err carries a quota or rate-limit signal.
func IsQuotaExceeded(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ProviderErrorQuotaExceeded
}

// IsAuthInvalid reports whether err carries an authentication failure.
func IsAuthInvalid(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ProviderErrorAuthInvalid
}
