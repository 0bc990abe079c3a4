package correction

import (
	"context"
	"strings"
)

type mockCorrector struct{}

// NewMock returns a corrector that echoes the trimmed input.
func NewMock() Corrector { return mockCorrector{} }

func (mockCorrector) Available() bool { return true }

func (mockCorrector) Correct(ctx context.Context, text string) (string, error) {
	if blank(text) {
		return "", ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
