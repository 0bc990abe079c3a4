package correction

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type GeminiOptions struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint.
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

type geminiCorrector struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGemini builds the Gemini corrector. A missing API key yields an
// unavailable corrector rather than an error.
func NewGemini(ctx context.Context, opts GeminiOptions) (Corrector, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return Unconfigured("Gemini API key not configured"), nil
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	var genCfg *genai.GenerateContentConfig
	if opts.MaxTokens > 0 || opts.Temperature > 0 {
		genCfg = &genai.GenerateContentConfig{}
		if opts.MaxTokens > 0 {
			genCfg.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.Temperature > 0 {
			genCfg.Temperature = genai.Ptr(float32(opts.Temperature))
		}
	}
	return &geminiCorrector{client: client, model: model, config: genCfg}, nil
}

func (g *geminiCorrector) Available() bool { return true }

func (g *geminiCorrector) Correct(ctx context.Context, text string) (string, error) {
	if blank(text) {
		return "", ErrEmptyText
	}
	contents := []*genai.Content{genai.NewContentFromText(Prompt(text), genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", &ServiceError{Provider: "gemini", Err: err}
	}
	return orInput(responseText(resp), text), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
		// Only the first candidate with content is used.
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}
