package correction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

// FromConfig builds the configured corrector wrapped with tracing.
func FromConfig(ctx context.Context, cfg config.CorrectionConfig, language string, logger *slog.Logger) (Corrector, error) {
	var (
		c   Corrector
		err error
	)
	switch cfg.Mode {
	case "", "gemini":
		c, err = NewGemini(ctx, GeminiOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case "ollama":
		c = NewOllama(OllamaOptions{
			Endpoint:    cfg.Endpoint,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case "exec":
		c, err = NewExec(cfg.Command, language)
	case "mock":
		c = NewMock()
	default:
		return nil, fmt.Errorf("unknown correction mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	mode := cfg.Mode
	if mode == "" {
		mode = "gemini"
	}
	if !c.Available() {
		logger.Warn("correction provider unavailable", slog.String("mode", mode), slog.String("reason", UnavailableReason(c)))
	} else {
		logger.Info("correction provider ready", slog.String("mode", mode))
	}
	return Traced(c, mode), nil
}
