package sink

import (
	"testing"
	"time"
)

func TestIDGeneratorFormat(t *testing.T) {
	g := NewIDGenerator()
	g.now = func() time.Time {
		return time.Date(2026, time.January, 31, 11, 23, 0, 0, time.UTC) // 14:23 in UTC+3
	}

	if got := g.Next(); got != "0131T1423-01" {
		t.Fatalf("Next = %q, want %q", got, "0131T1423-01")
	}
	if got := g.Next(); got != "0131T1423-02" {
		t.Fatalf("Next = %q, want %q", got, "0131T1423-02")
	}
}

func TestIDGeneratorWrapsAt99(t *testing.T) {
	g := NewIDGenerator()
	g.now = func() time.Time {
		return time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
	}

	var last string
	for range 99 {
		last = g.Next()
	}
	if want := "0601T1200-99"; last != want {
		t.Fatalf("99th id = %q, want %q", last, want)
	}

	if got, want := g.Next(), "0601T1200-01"; got != want {
		t.Fatalf("id after wrap = %q, want %q", got, want)
	}
}
