package trips

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/evtrip/core/logger"
	"github.com/kilianp07/evtrip/core/model"
)

// Manager implements CRUD and status transitions over one vehicle's trips.
type Manager struct {
	vehicleID string
	store     Store
	notifier  Notifier
	log       logger.Logger
	now       func() time.Time
	suffix    func() string
	loc       *time.Location

	mu sync.Mutex
}

// Option customises a Manager.
type Option func(*Manager)

// WithNotifier sets the hook told about every persisted mutation.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDSuffix overrides the random suffix appended to generated ids.
func WithIDSuffix(f func() string) Option {
	return func(m *Manager) {
		if f != nil {
			m.suffix = f
		}
	}
}

// WithLocation sets the zone naive datetimes are validated in.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// NewManager returns the trip manager of vehicleID backed by store.
func NewManager(vehicleID string, store Store, opts ...Option) *Manager {
	m := &Manager{
		vehicleID: vehicleID,
		store:     store,
		notifier:  nopNotifier{},
		log:       logger.Nop{},
		now:       time.Now,
		suffix:    shortUUID,
		loc:       time.Local,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func shortUUID() string { return uuid.NewString()[:8] }

// VehicleID returns the vehicle this manager owns trips for.
func (m *Manager) VehicleID() string { return m.vehicleID }

// Setup initialises empty storage for a vehicle seen for the first time.
func (m *Manager) Setup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int
	created, err := m.atomically(ctx, func(trips []model.Trip, found bool) ([]model.Trip, bool, error) {
		count = len(trips)
		if found {
			return nil, false, nil
		}
		return []model.Trip{}, true, nil
	})
	if err != nil {
		return fmt.Errorf("init trips: %w", err)
	}
	if created {
		m.log.Infof("initialized empty trip storage for vehicle %s", m.vehicleID)
		return nil
	}
	m.log.Infof("loaded %d trips for vehicle %s", count, m.vehicleID)
	return nil
}

// AddRecurring stores a weekly trip and returns its id.
func (m *Manager) AddRecurring(ctx context.Context, weekday, timeOfDay string, km, kwh float64, description string) (string, error) {
	day, err := model.ParseWeekday(weekday)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := validateAmounts(km, kwh); err != nil {
		return "", err
	}
	trip := model.Trip{
		ID:          fmt.Sprintf("rec_%s_%s", day.Abbrev(), m.suffix()),
		Kind:        model.KindRecurring,
		Weekday:     day,
		Time:        timeOfDay,
		DistanceKM:  km,
		EnergyKWh:   kwh,
		Description: description,
		Active:      true,
		CreatedAt:   m.now(),
	}
	if err := m.add(ctx, trip); err != nil {
		return "", err
	}
	m.log.Infof("added recurring trip %s (%s)", trip.ID, description)
	return trip.ID, nil
}

// AddPunctual stores a one-off trip in pending state and returns its id.
func (m *Manager) AddPunctual(ctx context.Context, datetime string, km, kwh float64, description string) (string, error) {
	if _, err := model.ParseDateTime(datetime, m.loc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := validateAmounts(km, kwh); err != nil {
		return "", err
	}
	date := strings.ReplaceAll(strings.TrimSpace(datetime)[:10], "-", "")
	trip := model.Trip{
		ID:          fmt.Sprintf("pun_%s_%s", date, m.suffix()),
		Kind:        model.KindPunctual,
		DateTime:    datetime,
		DistanceKM:  km,
		EnergyKWh:   kwh,
		Description: description,
		Status:      model.StatusPending,
		CreatedAt:   m.now(),
	}
	if err := m.add(ctx, trip); err != nil {
		return "", err
	}
	m.log.Infof("added punctual trip %s (%s)", trip.ID, description)
	return trip.ID, nil
}

func (m *Manager) add(ctx context.Context, trip model.Trip) error {
	_, err := m.mutate(ctx, func(trips []model.Trip) ([]model.Trip, bool, error) {
		return append(trips, trip), true, nil
	})
	return err
}

// Get returns the trip with the given id.
func (m *Manager) Get(ctx context.Context, id string) (model.Trip, bool, error) {
	trips, err := m.load(ctx)
	if err != nil {
		return model.Trip{}, false, err
	}
	i := indexOf(trips, id)
	if i < 0 {
		return model.Trip{}, false, nil
	}
	return trips[i], true, nil
}

// List returns every trip in insertion order.
func (m *Manager) List(ctx context.Context) ([]model.Trip, error) {
	return m.load(ctx)
}

// ListRecurring returns the weekly trips in insertion order.
func (m *Manager) ListRecurring(ctx context.Context) ([]model.Trip, error) {
	return m.filter(ctx, model.KindRecurring)
}

// ListPunctual returns the one-off trips in insertion order.
func (m *Manager) ListPunctual(ctx context.Context) ([]model.Trip, error) {
	return m.filter(ctx, model.KindPunctual)
}

func (m *Manager) filter(ctx context.Context, kind model.Kind) ([]model.Trip, error) {
	trips, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Trip, 0, len(trips))
	for _, t := range trips {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out, nil
}

// Update merges the set fields of upd into the trip with the given id. It
// reports whether the trip exists; nothing is written otherwise.
func (m *Manager) Update(ctx context.Context, id string, upd Update) (bool, error) {
	ok, err := m.mutate(ctx, func(trips []model.Trip) ([]model.Trip, bool, error) {
		i := indexOf(trips, id)
		if i < 0 {
			return nil, false, nil
		}
		next, err := upd.Apply(trips[i], m.loc)
		if err != nil {
			return nil, false, err
		}
		trips[i] = next
		return trips, true, nil
	})
	if err == nil {
		m.logResult(ok, "updated trip %s", "trip not found for update: %s", id)
	}
	return ok, err
}

// Delete removes the trip with the given id. The list is only written when it
// shrank.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := m.mutate(ctx, func(trips []model.Trip) ([]model.Trip, bool, error) {
		kept := trips[:0]
		for _, t := range trips {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		return kept, len(kept) < len(trips), nil
	})
	if err == nil {
		m.logResult(ok, "deleted trip %s", "trip not found for deletion: %s", id)
	}
	return ok, err
}

// SetActive pauses or resumes a recurring trip. Punctual or missing ids
// report false.
func (m *Manager) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	return m.transition(ctx, id, model.KindRecurring, func(t *model.Trip) { t.Active = active })
}

// Pause sets a recurring trip inactive.
func (m *Manager) Pause(ctx context.Context, id string) (bool, error) { return m.SetActive(ctx, id, false) }

// Resume sets a recurring trip active again.
func (m *Manager) Resume(ctx context.Context, id string) (bool, error) { return m.SetActive(ctx, id, true) }

// SetStatus moves a punctual trip to completed or cancelled. Recurring or
// missing ids report false.
func (m *Manager) SetStatus(ctx context.Context, id string, status model.Status) (bool, error) {
	if status != model.StatusCompleted && status != model.StatusCancelled {
		return false, fmt.Errorf("%w: status %q is not a terminal state", ErrInvalidInput, status)
	}
	return m.transition(ctx, id, model.KindPunctual, func(t *model.Trip) { t.Status = status })
}

// Complete marks a punctual trip as completed.
func (m *Manager) Complete(ctx context.Context, id string) (bool, error) {
	return m.SetStatus(ctx, id, model.StatusCompleted)
}

// Cancel marks a punctual trip as cancelled.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	return m.SetStatus(ctx, id, model.StatusCancelled)
}

func (m *Manager) transition(ctx context.Context, id string, kind model.Kind, apply func(*model.Trip)) (bool, error) {
	ok, err := m.mutate(ctx, func(trips []model.Trip) ([]model.Trip, bool, error) {
		i := indexOf(trips, id)
		if i < 0 || trips[i].Kind != kind {
			return nil, false, nil
		}
		apply(&trips[i])
		return trips, true, nil
	})
	if err == nil {
		m.logResult(ok, "updated trip %s", fmt.Sprintf("%s trip not found: %%s", kind), id)
	}
	return ok, err
}

// mutate runs one load/modify/save span under the manager lock, and under the
// store's own lock when it implements Mutator. fn reports whether the list
// changed; unchanged lists are not written and no notification is sent.
func (m *Manager) mutate(ctx context.Context, fn func([]model.Trip) ([]model.Trip, bool, error)) (bool, error) {
	changed, err := func() (bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		var fnErr error
		changed, err := m.atomically(ctx, func(trips []model.Trip, found bool) ([]model.Trip, bool, error) {
			if !found {
				m.log.Debugf("no trips found for vehicle %s", m.vehicleID)
				trips = []model.Trip{}
			}
			next, changed, err := fn(trips)
			fnErr = err
			return next, changed, err
		})
		if fnErr != nil {
			return false, fnErr
		}
		if err != nil {
			return false, fmt.Errorf("store trips: %w", err)
		}
		return changed, nil
	}()
	if changed {
		m.notify()
	}
	return changed, err
}

// atomically applies fn through the store's Mutate, or with a plain Load and
// Save for stores without one. The caller holds m.mu.
func (m *Manager) atomically(ctx context.Context, fn MutateFunc) (bool, error) {
	if mt, ok := m.store.(Mutator); ok {
		changed, err := mt.Mutate(ctx, m.vehicleID, fn)
		if changed && err == nil {
			m.log.Debugf("saved trips for vehicle %s", m.vehicleID)
		}
		return changed, err
	}
	trips, found, err := m.store.Load(ctx, m.vehicleID)
	if err != nil {
		return false, fmt.Errorf("load trips: %w", err)
	}
	next, changed, err := fn(trips, found)
	if err != nil || !changed {
		return false, err
	}
	if err := m.store.Save(ctx, m.vehicleID, next); err != nil {
		return false, err
	}
	m.log.Debugf("saved %d trips for vehicle %s", len(next), m.vehicleID)
	return true, nil
}

func (m *Manager) notify() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("trip notification for %s failed: %v", m.vehicleID, r)
		}
	}()
	m.notifier.Notify(m.vehicleID)
}

func (m *Manager) load(ctx context.Context) ([]model.Trip, error) {
	trips, found, err := m.store.Load(ctx, m.vehicleID)
	if err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}
	if !found {
		m.log.Debugf("no trips found for vehicle %s", m.vehicleID)
		return []model.Trip{}, nil
	}
	return trips, nil
}

func (m *Manager) logResult(ok bool, okFmt, missFmt, id string) {
	if ok {
		m.log.Infof(okFmt, id)
		return
	}
	m.log.Warnf(missFmt, id)
}

func indexOf(trips []model.Trip, id string) int {
	for i, t := range trips {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// MaxAmount bounds the distance in km and the energy in kWh of one trip.
const MaxAmount = 1e6

func validateAmounts(km, kwh float64) error {
	if math.IsNaN(km) || km < 0 || km > MaxAmount {
		return fmt.Errorf("%w: distance must be between 0 and %g km, got %v", ErrInvalidInput, float64(MaxAmount), km)
	}
	if math.IsNaN(kwh) || kwh < 0 || kwh > MaxAmount {
		return fmt.Errorf("%w: energy must be between 0 and %g kWh, got %v", ErrInvalidInput, float64(MaxAmount), kwh)
	}
	return nil
}
