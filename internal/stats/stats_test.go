package stats

import (
	"math"
	"testing"
	"time"
)

func TestWordCount(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"میں جا رہا ہوں", 4},
		{"  one\ttwo\nthree  ", 3},
	}
	for _, tc := range cases {
		if got := WordCount(tc.text); got != tc.want {
			t.Fatalf("WordCount(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{9 * time.Second, "0:09"},
		{65 * time.Second, "1:05"},
		{12*time.Minute + 300*time.Millisecond, "12:00"},
		{-time.Second, "0:00"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestAccuracy(t *testing.T) {
	cases := []struct {
		words, corrections int
		want               float64
	}{
		{0, 0, 0},
		{0, 3, 0},
		{10, 0, 98},
		{10, 3, 97},
		{10, 20, 85},
		{4, 1, 97.5},
	}
	for _, tc := range cases {
		if got := Accuracy(tc.words, tc.corrections); got != tc.want {
			t.Fatalf("Accuracy(%d, %d) = %v, want %v", tc.words, tc.corrections, got, tc.want)
		}
	}
}

func TestCompute(t *testing.T) {
	s := Compute("ایک دو تین", 75*time.Second, 1)
	if s.Words != 3 || s.Duration != "1:15" || s.Corrections != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if math.Abs(s.Accuracy-96.6667) > 0.001 {
		t.Fatalf("unexpected accuracy %v", s.Accuracy)
	}
}
