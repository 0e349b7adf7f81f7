package model

import (
	"testing"
	"time"
)

func TestParseWeekday(t *testing.T) {
	for _, w := range Weekdays {
		got, err := ParseWeekday(string(w))
		if err != nil || got != w {
			t.Fatalf("parse %s: %v %v", w, got, err)
		}
	}
	for _, bad := range []string{"", "Monday", "mon", "lunes", "funday"} {
		if _, err := ParseWeekday(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestWeekdayMapping(t *testing.T) {
	d, ok := Sunday.TimeWeekday()
	if !ok || d != time.Sunday {
		t.Fatalf("sunday mapped to %v", d)
	}
	if _, ok := Weekday("someday").TimeWeekday(); ok {
		t.Fatalf("unknown label mapped")
	}
	if Wednesday.Abbrev() != "wed" {
		t.Fatalf("abbrev %s", Wednesday.Abbrev())
	}
}

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"08:00", TimeOfDay{8, 0}, false},
		{"23:59", TimeOfDay{23, 59}, false},
		{"0:5", TimeOfDay{0, 5}, false},
		{"24:00", TimeOfDay{}, true},
		{"12:60", TimeOfDay{}, true},
		{"-1:00", TimeOfDay{}, true},
		{"0800", TimeOfDay{}, true},
		{"ab:cd", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}
	for _, c := range cases {
		got, err := ParseTimeOfDay(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", c.in)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Errorf("%q: got %v err %v", c.in, got, err)
		}
	}
	if (TimeOfDay{7, 5}).String() != "07:05" {
		t.Fatalf("string format")
	}
}

func TestTimeOfDayOn(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	day := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	got := TimeOfDay{8, 15}.On(day, loc)
	want := time.Date(2025, 3, 10, 8, 15, 0, 0, loc)
	if !got.Equal(want) || got.Location() != loc {
		t.Fatalf("got %v want %v", got, want)
	}
}
