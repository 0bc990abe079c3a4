// Package correction sends a finished transcript to a text-correction
// provider. The provider is opaque: the transcript goes out, corrected text
// comes back.
package correction

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const DefaultModel = "gemini-2.5-flash"

var (
	// ErrEmptyText is returned for blank input. No provider call is made.
	ErrEmptyText = errors.New("text is required")
	// ErrUnavailable is returned when no provider is configured.
	ErrUnavailable = errors.New("correction provider not configured")
)

// Corrector corrects a transcript.
type Corrector interface {
	Correct(ctx context.Context, text string) (string, error)
	Available() bool
}

// ServiceError wraps a provider failure.
type ServiceError struct {
	Provider string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s correction request failed: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

const promptTemplate = "You are an expert in Urdu language grammar and spelling. Please correct any spelling mistakes, grammar errors, and improve the clarity of the following Urdu text while preserving its original meaning and context. Only return the corrected text without any explanations or additional commentary.\n\nOriginal text: %s"

// Prompt builds the instruction sent to language-model providers.
func Prompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}

// UnavailableReason explains why c cannot serve requests.
func UnavailableReason(c Corrector) string {
	if r, ok := c.(interface{ Reason() string }); ok {
		return r.Reason()
	}
	return ErrUnavailable.Error()
}

type unconfigured struct {
	reason string
}

// Unconfigured returns a corrector that refuses every request with reason.
func Unconfigured(reason string) Corrector {
	if reason == "" {
		reason = ErrUnavailable.Error()
	}
	return unconfigured{reason: reason}
}

func (u unconfigured) Correct(ctx context.Context, text string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrUnavailable, u.reason)
}

func (u unconfigured) Available() bool { return false }

func (u unconfigured) Reason() string { return u.reason }

// orInput returns reply trimmed, or the original text when the provider came
// back empty.
func orInput(reply, text string) string {
	if s := strings.TrimSpace(reply); s != "" {
		return s
	}
	return text
}

func blank(text string) bool {
	return strings.TrimSpace(text) == ""
}
