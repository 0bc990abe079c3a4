package correction

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type OllamaOptions struct {
	Endpoint    string
	Model       string
	MaxTokens   int
	Temperature float64
	Client      *http.Client
}

type ollamaCorrector struct {
	opts OllamaOptions
}

func NewOllama(opts OllamaOptions) Corrector {
	if opts.Model == "" || strings.HasPrefix(opts.Model, "gemini") {
		opts.Model = "llama3.2:latest"
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	return &ollamaCorrector{opts: opts}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaStreamResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (o *ollamaCorrector) Available() bool { return o.opts.Endpoint != "" }

func (o *ollamaCorrector) Correct(ctx context.Context, text string) (string, error) {
	if blank(text) {
		return "", ErrEmptyText
	}
	reply, err := o.generate(ctx, Prompt(text))
	if err != nil {
		return "", &ServiceError{Provider: "ollama", Err: err}
	}
	return orInput(reply, text), nil
}

func (o *ollamaCorrector) generate(ctx context.Context, prompt string) (string, error) {
	payload := ollamaRequest{
		Model:  o.opts.Model,
		Prompt: prompt,
		Stream: true,
		Options: ollamaOptions{
			Temperature: o.opts.Temperature,
			NumPredict:  o.opts.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.opts.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.opts.Client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	var accumulated strings.Builder
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("decode ollama chunk: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama: %s", chunk.Error)
		}
		accumulated.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return accumulated.String(), nil
}
