package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evtrip/config"
	corejournal "github.com/kilianp07/evtrip/core/journal"
	"github.com/kilianp07/evtrip/core/monitoring"
	"github.com/kilianp07/evtrip/core/trips"
	"github.com/kilianp07/evtrip/infra/mqtt"
)

type fakeTransport struct {
	mu       sync.Mutex
	topics   map[string][][]byte
	handlers map[string]mqtt.Handler
}

func (f *fakeTransport) Publish(topic string, payload []byte, _ bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topics == nil {
		f.topics = map[string][][]byte{}
	}
	f.topics[topic] = append(f.topics[topic], payload)
	return nil
}

func (f *fakeTransport) Subscribe(topic, _ string, h mqtt.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string]mqtt.Handler{}
	}
	f.handlers[topic] = h
	return nil
}

func (f *fakeTransport) messages(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.topics[topic]...)
}

func (f *fakeTransport) handler(topic string) mqtt.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Vehicles: []config.VehicleConfig{{Name: "Tesla Model 3"}, {Name: "Zoe"}},
		Planner:  config.PlannerConfig{Timezone: "UTC", RefreshIntervalSeconds: -1},
		Storage:  config.StorageConfig{Backend: config.StorageMemory},
		Journal:  config.JournalConfig{Backend: "none"},
	}
	cfg.SetDefaults()
	return cfg
}

func TestService_Wiring(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
	j := &memJournal{}
	tr := &fakeTransport{}
	svc, err := New(context.Background(), cfg,
		UseJournal(j),
		UseTransport(tr),
		UseMonitor(monitoring.NopMonitor{}),
		UseClock(fixedClock(monday)),
	)
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, []string{"tesla_model_3", "zoe"}, svc.Registry().Vehicles())
	assert.Len(t, svc.Coordinators(), 2)
	_, err = svc.Coordinator("nope")
	assert.ErrorIs(t, err, trips.ErrUnknownVehicle)
	assert.Equal(t, time.UTC, svc.Location())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	coord, err := svc.Coordinator("tesla_model_3")
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, ok := coord.Latest(); return ok }, time.Second, 5*time.Millisecond)

	// a command over MQTT refreshes the snapshot and is journaled
	require.Eventually(t, func() bool { return tr.handler("ev_trip_planner/+/command/+") != nil }, time.Second, 5*time.Millisecond)
	tr.handler("ev_trip_planner/+/command/+")("ev_trip_planner/tesla_model_3/command/add_recurring_trip",
		[]byte(`{"weekday":"monday","time":"08:00","km":25}`))

	require.Eventually(t, func() bool {
		s, _ := coord.Latest()
		return s.RecurringCount == 1
	}, time.Second, 5*time.Millisecond)
	s, _ := coord.Latest()
	// 25 km * 0.15 kWh/km * 1.10 margin
	assert.InDelta(t, 4.125, s.EnergyTodayKWh, 1e-9)
	assert.Equal(t, 2, s.HoursToday)

	require.Eventually(t, func() bool {
		return len(tr.messages("ev_trip_planner/tesla_model_3/command/add_recurring_trip/result")) == 1
	}, time.Second, 5*time.Millisecond)
	var res mqtt.CommandResult
	require.NoError(t, json.Unmarshal(tr.messages("ev_trip_planner/tesla_model_3/command/add_recurring_trip/result")[0], &res))
	assert.True(t, res.OK)

	recs, err := svc.Journal().Query(context.Background(), corejournal.Query{VehicleID: "tesla_model_3"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "mqtt", recs[0].Source)

	assert.NotEmpty(t, tr.messages("homeassistant/sensor/ev_trip_planner_tesla_model_3/hours_today/config"))
	assert.NotEmpty(t, tr.messages("ev_trip_planner/zoe/state"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestService_UnknownSink(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Sinks = append(cfg.Metrics.Sinks, factoryModule("does_not_exist"))
	_, err := New(context.Background(), cfg, UseJournal(&memJournal{}))
	assert.Error(t, err)
}
