package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/evtrip/core/factory"
	corejournal "github.com/kilianp07/evtrip/core/journal"
	coremetrics "github.com/kilianp07/evtrip/core/metrics"
	"github.com/kilianp07/evtrip/core/planner"
	"github.com/kilianp07/evtrip/core/trips"
)

// 2025-01-06 is a Monday.
var monday = time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

type memJournal struct {
	mu   sync.Mutex
	recs []corejournal.Record
}

func (j *memJournal) Append(_ context.Context, r corejournal.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, r)
	return nil
}

func (j *memJournal) Query(_ context.Context, q corejournal.Query) ([]corejournal.Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []corejournal.Record
	for _, r := range j.recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return q.Tail(out), nil
}

func (j *memJournal) Close() error { return nil }

func (j *memJournal) last() corejournal.Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.recs[len(j.recs)-1]
}

type cmdRecorder struct {
	mu     sync.Mutex
	events []coremetrics.CommandEvent
}

func (r *cmdRecorder) RecordCommand(ev coremetrics.CommandEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []planner.Snapshot
	err   error
}

func (r *snapshotRecorder) RecordSnapshot(s planner.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return r.err
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *snapshotRecorder) last() planner.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func newTestRegistry(t *testing.T, vehicles ...string) *trips.Registry {
	t.Helper()
	n := 0
	reg := trips.NewRegistry(trips.NewMemoryStore(),
		trips.WithClock(fixedClock(monday)),
		trips.WithLocation(time.UTC),
		trips.WithIDSuffix(func() string { n++; return fmt.Sprintf("%08d", n) }),
	)
	for _, v := range vehicles {
		m, err := reg.Register(v)
		if err != nil {
			t.Fatalf("register %s: %v", v, err)
		}
		if err := m.Setup(context.Background()); err != nil {
			t.Fatalf("setup %s: %v", v, err)
		}
	}
	return reg
}

func factoryModule(kind string) factory.ModuleConfig { return factory.ModuleConfig{Type: kind} }
