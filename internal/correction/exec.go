package correction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// execCorrector runs an external command per request. The command reads
// {"text","prompt","language"} on stdin and writes {"corrected_text"} on
// stdout.
type execCorrector struct {
	cmd      []string
	language string
}

type execRequest struct {
	Text     string `json:"text"`
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
}

type execResponse struct {
	CorrectedText string `json:"corrected_text"`
}

func NewExec(command, language string) (Corrector, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse correction command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("correction command empty")
	}
	return &execCorrector{cmd: args, language: language}, nil
}

func (e *execCorrector) Available() bool { return true }

func (e *execCorrector) Correct(ctx context.Context, text string) (string, error) {
	if blank(text) {
		return "", ErrEmptyText
	}
	input, err := json.Marshal(execRequest{Text: text, Prompt: Prompt(text), Language: e.language})
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return "", &ServiceError{Provider: "exec", Err: fmt.Errorf("correction command failed: %w", err)}
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", &ServiceError{Provider: "exec", Err: fmt.Errorf("decode correction response: %w", err)}
	}
	return orInput(resp.CorrectedText, text), nil
}
