package model

import (
	"testing"
	"time"
)

func TestParseDateTimeNaiveIsLocal(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	for _, s := range []string{"2025-11-20T14:00:00", "2025-11-20T14:00", "2025-11-20 14:00:00", "2025-11-20 14:00"} {
		got, err := ParseDateTime(s, loc)
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		want := time.Date(2025, 11, 20, 14, 0, 0, 0, loc)
		if !got.Equal(want) {
			t.Fatalf("%s: got %v want %v", s, got, want)
		}
	}
}

func TestParseDateTimeZonedConverted(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	got, err := ParseDateTime("2025-11-20T23:30:00Z", loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Location() != loc {
		t.Fatalf("not converted to loc")
	}
	if got.Day() != 21 || got.Hour() != 0 {
		t.Fatalf("unexpected local time %v", got)
	}
}

func TestParseDateTimeInvalid(t *testing.T) {
	for _, s := range []string{"", "tomorrow", "2025-13-01T00:00:00", "2025-02-30T10:00", "20/11/2025 14:00"} {
		if _, err := ParseDateTime(s, time.UTC); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestSameDate(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	a := time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC) // 00:30 on Jan 2 in CET
	b := time.Date(2025, 1, 2, 8, 0, 0, 0, loc)
	if !SameDate(a, b, loc) {
		t.Fatalf("expected same local date")
	}
	if SameDate(a, b, time.UTC) {
		t.Fatalf("expected different UTC dates")
	}
}
