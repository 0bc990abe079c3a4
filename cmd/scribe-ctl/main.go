package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/correction"
	"github.com/loqalabs/loqa-scribe/internal/export"
)

var version = "0.1.0-dev"

func main() {
	var (
		validatePath string
		correctPath  string
		correctText  string
		exportPath   string
		exportAddr   string
		exportDir    string
	)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.StringVar(&validatePath, "config", "scribe.yaml", "Path to configuration file")

	correctCmd := flag.NewFlagSet("correct", flag.ExitOnError)
	correctCmd.StringVar(&correctPath, "config", "", "Path to configuration file")
	correctCmd.StringVar(&correctText, "text", "", "Text to correct (read from stdin when empty)")

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportCmd.StringVar(&exportPath, "config", "", "Path to configuration file")
	exportCmd.StringVar(&exportAddr, "addr", "http://localhost:8080", "Base URL of a running scribed")
	exportCmd.StringVar(&exportDir, "dir", "", "Output directory (export.directory when empty)")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'validate', 'correct', 'export' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		if err = runValidate(validatePath); err == nil {
			fmt.Println("config valid")
		}
	case "correct":
		_ = correctCmd.Parse(os.Args[2:])
		text := correctText
		if text == "" {
			data, readErr := io.ReadAll(os.Stdin)
			if readErr != nil {
				fmt.Fprintln(os.Stderr, readErr)
				os.Exit(1)
			}
			text = string(data)
		}
		err = runCorrect(context.Background(), correctPath, text, os.Stdout)
	case "export":
		_ = exportCmd.Parse(os.Args[2:])
		var path string
		if path, err = runExport(context.Background(), exportPath, exportAddr, exportDir, time.Now()); err == nil {
			fmt.Println(path)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runValidate(path string) error {
	_, err := config.Load(path)
	return err
}

// runCorrect sends text through the configured provider once, without
// debouncing.
func runCorrect(ctx context.Context, configPath, text string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return correction.ErrEmptyText
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	corrector, err := correction.FromConfig(ctx, cfg.Correction, cfg.Recognition.Language, logger)
	if err != nil {
		return err
	}
	if !corrector.Available() {
		return fmt.Errorf("%w: %s", correction.ErrUnavailable, correction.UnavailableReason(corrector))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Correction.TimeoutMS)*time.Millisecond)
	defer cancel()
	corrected, err := corrector.Correct(ctx, text)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, corrected)
	return err
}

// runExport fetches the live transcript from scribed and writes it to disk.
func runExport(ctx context.Context, configPath, addr, dir string, now time.Time) (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = cfg.Export.Directory
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/transcript", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch transcript: unexpected status %s", resp.Status)
	}

	var snap struct {
		FinalText string `json:"final_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	path, err := export.Write(dir, cfg.Export.Prefix, snap.FinalText, now)
	if errors.Is(err, export.ErrEmptyTranscript) {
		return "", errors.New("nothing to export: transcript is empty")
	}
	return path, err
}
