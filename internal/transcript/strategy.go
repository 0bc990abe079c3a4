package transcript

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/loqalabs/loqa-scribe/internal/recognition"
)

// Strategy selects how Result events are folded into the transcript.
//
// StrategyIncremental only looks at results from the event's ResultIndex on and
// appends new finals after de-duplication; text survives engine restarts that
// truncate the engine's history.
//
// StrategyRebuild recomputes the current engine session's finals from index 0
// on every event. Text finalized by earlier engine sessions is kept as a base
// captured on each Start, so it also survives restarts, but a mid-session
// revision of an already final result replaces the old wording.
type Strategy string

const (
	StrategyIncremental Strategy = "incremental"
	StrategyRebuild     Strategy = "rebuild"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategyIncremental:
		return StrategyIncremental, nil
	case StrategyRebuild:
		return StrategyRebuild, nil
	default:
		return "", fmt.Errorf("unknown reconciliation strategy %q", name)
	}
}

const (
	suppressProximity = "proximity"
	suppressContained = "contained"
	suppressWindow    = "window"
)

type reconcileResult struct {
	final      string
	interim    string
	accepted   int
	suppressed []string
	// sessionFinals counts the finals of the engine session (rebuild only).
	sessionFinals int
}

func reconcileIncremental(fold cases.Caser, window *dedupWindow, final string, evt recognition.ResultEvent) reconcileResult {
	out := reconcileResult{final: final}
	var interims []string
	for i := max(evt.ResultIndex, 0); i < len(evt.Results); i++ {
		res := evt.Results[i]
		text := strings.TrimSpace(res.Transcript())
		if text == "" {
			continue
		}
		if !res.IsFinal {
			interims = append(interims, text)
			continue
		}
		if containsFold(fold, out.final, text) {
			out.suppressed = append(out.suppressed, suppressContained)
			continue
		}
		if window.seen(text, i) {
			out.suppressed = append(out.suppressed, suppressWindow)
			continue
		}
		window.add(text, i)
		out.final = appendText(out.final, text)
		out.accepted++
	}
	out.interim = joinInterim(fold, out.final, interims)
	return out
}

// reconcileRebuild skips the first skip finals of the session, which were
// cleared by the user.
func reconcileRebuild(fold cases.Caser, base string, skip int, evt recognition.ResultEvent) reconcileResult {
	var finals, interims []string
	seen := 0
	for _, res := range evt.Results {
		text := strings.TrimSpace(res.Transcript())
		if text == "" {
			continue
		}
		if !res.IsFinal {
			interims = append(interims, text)
			continue
		}
		seen++
		if seen > skip {
			finals = append(finals, text)
		}
	}
	out := reconcileResult{final: appendText(base, strings.Join(finals, " ")), sessionFinals: seen}
	out.interim = joinInterim(fold, out.final, interims)
	return out
}

func joinInterim(fold cases.Caser, final string, parts []string) string {
	kept := parts[:0]
	for _, part := range parts {
		if !containsFold(fold, final, part) {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}

func appendText(existing, text string) string {
	if text == "" {
		return existing
	}
	if existing == "" {
		return text
	}
	return existing + " " + text
}

func containsFold(fold cases.Caser, haystack, needle string) bool {
	if haystack == "" || needle == "" {
		return false
	}
	return strings.Contains(fold.String(haystack), fold.String(needle))
}
