package trips

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evtrip/core/model"
)

var testNow = time.Date(2025, 11, 17, 8, 0, 0, 0, time.UTC)

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify(string) { c.n.Add(1) }

type failingStore struct{ *MemoryStore }

func (f *failingStore) Save(context.Context, string, []model.Trip) error {
	return errors.New("disk full")
}

func (f *failingStore) Mutate(context.Context, string, MutateFunc) (bool, error) {
	return false, errors.New("disk full")
}

// loadSaveStore hides the Mutator of the wrapped store.
type loadSaveStore struct{ inner *MemoryStore }

func (s loadSaveStore) Load(ctx context.Context, v string) ([]model.Trip, bool, error) {
	return s.inner.Load(ctx, v)
}

func (s loadSaveStore) Save(ctx context.Context, v string, list []model.Trip) error {
	return s.inner.Save(ctx, v, list)
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *MemoryStore, *countingNotifier) {
	t.Helper()
	store := NewMemoryStore()
	n := &countingNotifier{}
	seq := 0
	base := []Option{
		WithNotifier(n),
		WithClock(func() time.Time { return testNow }),
		WithIDSuffix(func() string { seq++; return fmt.Sprintf("%08d", seq) }),
		WithLocation(time.UTC),
	}
	return NewManager("car", store, append(base, opts...)...), store, n
}

func TestSetupInitialisesEmptyStorage(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	if err := m.Setup(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}
	trips, found, _ := store.Load(ctx, "car")
	if !found || len(trips) != 0 {
		t.Fatalf("expected empty stored list, got %v found=%v", trips, found)
	}
	if err := m.Setup(ctx); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if store.Saves("car") != 1 {
		t.Fatalf("setup must not rewrite existing storage, saves=%d", store.Saves("car"))
	}
}

func TestAddRecurring(t *testing.T) {
	m, store, n := newTestManager(t)
	ctx := context.Background()
	id, err := m.AddRecurring(ctx, "monday", "09:00", 24, 3.6, "Work")
	require.NoError(t, err)

	want := model.Trip{
		ID:          "rec_mon_00000001",
		Kind:        model.KindRecurring,
		Weekday:     model.Monday,
		Time:        "09:00",
		DistanceKM:  24,
		EnergyKWh:   3.6,
		Description: "Work",
		Active:      true,
		CreatedAt:   testNow,
	}
	assert.Equal(t, want.ID, id)
	trip, ok, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, trip)

	stored, found, err := store.Load(ctx, "car")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []model.Trip{want}, stored)
	assert.EqualValues(t, 1, n.n.Load())
}

func TestAddRecurringRejectsInvalidWeekday(t *testing.T) {
	m, store, n := newTestManager(t)
	_, err := m.AddRecurring(context.Background(), "funday", "09:00", 1, 1, "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput got %v", err)
	}
	if store.Saves("car") != 0 || n.n.Load() != 0 {
		t.Fatal("nothing should be persisted")
	}
}

func TestAddRejectsInvalidAmounts(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	for _, v := range []float64{-1, math.NaN(), math.Inf(1), 1e20, MaxAmount + 1} {
		if _, err := m.AddRecurring(ctx, "monday", "09:00", v, 1, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("km=%v: expected ErrInvalidInput got %v", v, err)
		}
		if _, err := m.AddPunctual(ctx, "2025-11-20T15:00:00", 1, v, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("kwh=%v: expected ErrInvalidInput got %v", v, err)
		}
	}
}

func TestAddPunctual(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	id, err := m.AddPunctual(ctx, "2025-11-20T15:00:00", 110, 16.5, "Toledo")
	require.NoError(t, err)

	want := model.Trip{
		ID:          "pun_20251120_00000001",
		Kind:        model.KindPunctual,
		DateTime:    "2025-11-20T15:00:00",
		DistanceKM:  110,
		EnergyKWh:   16.5,
		Description: "Toledo",
		Status:      model.StatusPending,
		CreatedAt:   testNow,
	}
	assert.Equal(t, want.ID, id)
	trip, ok, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, trip)

	stored, _, err := store.Load(ctx, "car")
	require.NoError(t, err)
	assert.Equal(t, []model.Trip{want}, stored)

	_, err = m.AddPunctual(ctx, "not-a-date", 1, 1, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListFiltersPreserveOrder(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	r1, _ := m.AddRecurring(ctx, "tuesday", "08:00", 1, 1, "")
	p1, _ := m.AddPunctual(ctx, "2025-11-20T15:00:00", 1, 1, "")
	r2, _ := m.AddRecurring(ctx, "monday", "08:00", 1, 1, "")

	all, _ := m.List(ctx)
	rec, _ := m.ListRecurring(ctx)
	pun, _ := m.ListPunctual(ctx)
	if len(all) != 3 || all[0].ID != r1 || all[1].ID != p1 || all[2].ID != r2 {
		t.Fatalf("unexpected list order %+v", all)
	}
	if len(rec) != 2 || rec[0].ID != r1 || rec[1].ID != r2 {
		t.Fatalf("unexpected recurring %+v", rec)
	}
	if len(pun) != 1 || pun[0].ID != p1 {
		t.Fatalf("unexpected punctual %+v", pun)
	}
}

func TestUpdate(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	id, _ := m.AddRecurring(ctx, "monday", "09:00", 24, 3.6, "Work")
	kwh := 5.0
	desc := "Office"
	ok, err := m.Update(ctx, id, Update{EnergyKWh: &kwh, Description: &desc})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	trip, _, _ := m.Get(ctx, id)
	if trip.EnergyKWh != 5 || trip.Description != "Office" || trip.DistanceKM != 24 {
		t.Fatalf("unexpected trip %+v", trip)
	}

	saves := store.Saves("car")
	ok, err = m.Update(ctx, "missing", Update{EnergyKWh: &kwh})
	if err != nil || ok {
		t.Fatalf("missing update: ok=%v err=%v", ok, err)
	}
	if store.Saves("car") != saves {
		t.Fatal("missing update must not persist")
	}
}

func TestUpdateRejectsForeignFields(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	rec, _ := m.AddRecurring(ctx, "monday", "09:00", 1, 1, "")
	pun, _ := m.AddPunctual(ctx, "2025-11-20T15:00:00", 1, 1, "")
	status := "completed"
	day := "friday"
	bad := "sometime"
	if _, err := m.Update(ctx, rec, Update{Status: &status}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("status on recurring: %v", err)
	}
	if _, err := m.Update(ctx, pun, Update{Weekday: &day}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("weekday on punctual: %v", err)
	}
	if _, err := m.Update(ctx, pun, Update{DateTime: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad datetime: %v", err)
	}
	if _, err := m.Update(ctx, pun, Update{Status: &status}); err != nil {
		t.Errorf("status on punctual: %v", err)
	}
}

func TestDelete(t *testing.T) {
	m, store, n := newTestManager(t)
	ctx := context.Background()
	id, _ := m.AddRecurring(ctx, "monday", "09:00", 1, 1, "")
	ok, err := m.Delete(ctx, id)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	saves := store.Saves("car")
	ok, _ = m.Delete(ctx, id)
	if ok {
		t.Fatal("second delete should report false")
	}
	if store.Saves("car") != saves {
		t.Fatal("unchanged list must not be written")
	}
	if n.n.Load() != 2 {
		t.Fatalf("expected 2 notifications got %d", n.n.Load())
	}
}

func TestStatusTransitionsRespectKind(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	rec, _ := m.AddRecurring(ctx, "monday", "09:00", 1, 1, "")
	pun, _ := m.AddPunctual(ctx, "2025-11-20T15:00:00", 1, 1, "")

	if ok, _ := m.Pause(ctx, rec); !ok {
		t.Fatal("pause recurring")
	}
	if tr, _, _ := m.Get(ctx, rec); tr.Active {
		t.Fatal("trip still active")
	}
	if ok, _ := m.Resume(ctx, rec); !ok {
		t.Fatal("resume recurring")
	}
	if ok, _ := m.Pause(ctx, pun); ok {
		t.Fatal("pause must not apply to punctual trips")
	}
	if ok, _ := m.Complete(ctx, rec); ok {
		t.Fatal("complete must not apply to recurring trips")
	}
	if ok, _ := m.Cancel(ctx, pun); !ok {
		t.Fatal("cancel punctual")
	}
	if tr, _, _ := m.Get(ctx, pun); tr.Status != model.StatusCancelled {
		t.Fatalf("unexpected status %s", tr.Status)
	}
	if _, err := m.SetStatus(ctx, pun, model.StatusPending); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput got %v", err)
	}
}

func TestSaveFailureSkipsNotification(t *testing.T) {
	n := &countingNotifier{}
	store := &failingStore{MemoryStore: NewMemoryStore()}
	m := NewManager("car", store, WithNotifier(n))
	if _, err := m.AddRecurring(context.Background(), "monday", "09:00", 1, 1, ""); err == nil {
		t.Fatal("expected save error")
	}
	if n.n.Load() != 0 {
		t.Fatal("failed save must not notify")
	}
}

func TestNotifierPanicDoesNotFailMutation(t *testing.T) {
	m, _, _ := newTestManager(t, WithNotifier(NotifierFunc(func(string) { panic("boom") })))
	if _, err := m.AddRecurring(context.Background(), "monday", "09:00", 1, 1, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	m := NewManager("car", NewMemoryStore())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.AddRecurring(ctx, "monday", "09:00", 1, 1, ""); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()
	trips, _ := m.List(ctx)
	if len(trips) != 20 {
		t.Fatalf("expected 20 trips got %d", len(trips))
	}
}

func TestManagerOverLoadSaveStore(t *testing.T) {
	inner := NewMemoryStore()
	m := NewManager("car", loadSaveStore{inner: inner})
	ctx := context.Background()
	require.NoError(t, m.Setup(ctx))
	require.NoError(t, m.Setup(ctx))
	assert.Equal(t, 1, inner.Saves("car"))

	id, err := m.AddRecurring(ctx, "sunday", "10:00", 5, 1, "Market")
	require.NoError(t, err)
	ok, err := m.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, inner.Saves("car"))
	got, ok, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Sunday, got.Weekday)
}
