package engine

import (
	"regexp"
	"testing"
	"time"
)

func TestNumberGenerator_Next(t *testing.T) {
	gen := NewNumberGenerator("WF")
	at := time.Date(2025, 8, 29, 14, 15, 30, 0, time.UTC)

	got := gen.Next(at)
	pattern := regexp.MustCompile(`^WF-20250829-141530-[0-9A-F]{6}$`)
	if !pattern.MatchString(got) {
		t.Errorf("Next = %q, want match for %s", got, pattern)
	}

	if gen.Next(at) == got {
		t.Error("expected distinct suffixes for the same timestamp")
	}
}

func TestNumberGenerator_DefaultPrefix(t *testing.T) {
	gen := NewNumberGenerator("")
	got := gen.Next(time.Now())
	if got[:3] != "WF-" {
		t.Errorf("Next = %q, want WF- prefix by default", got)
	}
}

func TestNumberGenerator_ConvertsToUTC(t *testing.T) {
	gen := NewNumberGenerator("SO")
	loc := time.FixedZone("UTC+2", 2*60*60)
	at := time.Date(2025, 8, 29, 16, 0, 0, 0, loc)

	got := gen.Next(at)
	if got[:12] != "SO-20250829-" || got[12:18] != "140000" {
		t.Errorf("Next = %q, want local time rendered as 14:00:00 UTC", got)
	}
}
