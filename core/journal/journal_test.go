package journal

import (
	"testing"
	"time"
)

func TestQueryMatch(t *testing.T) {
	now := time.Now()
	r := Record{Timestamp: now, VehicleID: "car", Command: "delete_trip"}
	cases := []struct {
		name string
		q    Query
		want bool
	}{
		{"empty", Query{}, true},
		{"vehicle", Query{VehicleID: "car"}, true},
		{"other vehicle", Query{VehicleID: "van"}, false},
		{"command", Query{Command: "add_recurring_trip"}, false},
		{"window", Query{Start: now.Add(-time.Minute), End: now.Add(time.Minute)}, true},
		{"before window", Query{Start: now.Add(time.Minute)}, false},
	}
	for _, tc := range cases {
		if got := tc.q.Match(r); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestQueryTail(t *testing.T) {
	recs := []Record{{Command: "a"}, {Command: "b"}, {Command: "c"}}
	if out := (Query{Limit: 2}).Tail(recs); len(out) != 2 || out[0].Command != "b" {
		t.Fatalf("unexpected tail %v", out)
	}
	if out := (Query{}).Tail(recs); len(out) != 3 {
		t.Fatalf("unexpected tail %v", out)
	}
}
