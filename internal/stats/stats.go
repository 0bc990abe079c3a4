// Package stats derives the dictation statistics shown next to the
// transcript.
package stats

import (
	"fmt"
	"strings"
	"time"
)

// Stats is a point-in-time summary of a dictation session.
type Stats struct {
	Words       int     `json:"words"`
	Duration    string  `json:"duration"`
	Corrections int     `json:"corrections"`
	Accuracy    float64 `json:"accuracy"`
}

// Compute summarises text dictated over elapsed with the given number of
// successful corrections.
func Compute(text string, elapsed time.Duration, corrections int) Stats {
	words := WordCount(text)
	return Stats{
		Words:       words,
		Duration:    FormatDuration(elapsed),
		Corrections: corrections,
		Accuracy:    Accuracy(words, corrections),
	}
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// FormatDuration renders d as m:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Accuracy is a rough estimate: every correction per word costs ten points,
// bounded to [85, 98]. It is 0 before anything was said.
func Accuracy(words, corrections int) float64 {
	if words <= 0 {
		return 0
	}
	estimate := 100 - float64(corrections)/float64(words)*10
	switch {
	case estimate < 85:
		return 85
	case estimate > 98:
		return 98
	}
	return estimate
}
