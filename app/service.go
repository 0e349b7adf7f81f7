package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/evtrip/config"
	"github.com/kilianp07/evtrip/core/events"
	"github.com/kilianp07/evtrip/core/factory"
	corejournal "github.com/kilianp07/evtrip/core/journal"
	"github.com/kilianp07/evtrip/core/logger"
	coremetrics "github.com/kilianp07/evtrip/core/metrics"
	"github.com/kilianp07/evtrip/core/monitoring"
	"github.com/kilianp07/evtrip/core/planner"
	"github.com/kilianp07/evtrip/core/trips"
	infrajournal "github.com/kilianp07/evtrip/infra/journal"
	infralogger "github.com/kilianp07/evtrip/infra/logger"
	"github.com/kilianp07/evtrip/infra/metrics"
	inframon "github.com/kilianp07/evtrip/infra/monitoring"
	"github.com/kilianp07/evtrip/infra/mqtt"
	"github.com/kilianp07/evtrip/infra/store"
	"github.com/kilianp07/evtrip/internal/eventbus"
)

// Service wires storage, the vehicle registry, the coordinators and the
// display and command transports.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	monitor  monitoring.Monitor
	loc      *time.Location
	store    store.Backend
	journal  corejournal.Store
	registry *trips.Registry
	commands *Commands

	coords    []*Coordinator
	byVehicle map[string]*Coordinator

	updates   *eventbus.TypedBus[events.TripsUpdated]
	refreshed *eventbus.TypedBus[events.SnapshotRefreshed]
	sink      *coremetrics.MultiSink

	transport mqtt.Transport
	client    *mqtt.PahoClient
	publisher *mqtt.StatePublisher

	wg sync.WaitGroup
}

type serviceOptions struct {
	store     store.Backend
	journal   corejournal.Store
	transport mqtt.Transport
	monitor   monitoring.Monitor
	sinks     []coremetrics.SnapshotSink
	now       func() time.Time
}

// ServiceOption overrides a collaborator built from the configuration.
type ServiceOption func(*serviceOptions)

// UseStore replaces the configured storage backend.
func UseStore(b store.Backend) ServiceOption { return func(o *serviceOptions) { o.store = b } }

// UseJournal replaces the configured command journal.
func UseJournal(j corejournal.Store) ServiceOption { return func(o *serviceOptions) { o.journal = j } }

// UseTransport replaces the MQTT client built from the configuration.
func UseTransport(t mqtt.Transport) ServiceOption { return func(o *serviceOptions) { o.transport = t } }

// UseMonitor replaces the Sentry monitor.
func UseMonitor(m monitoring.Monitor) ServiceOption { return func(o *serviceOptions) { o.monitor = m } }

// UseSink adds a snapshot sink next to the configured ones.
func UseSink(s coremetrics.SnapshotSink) ServiceOption {
	return func(o *serviceOptions) { o.sinks = append(o.sinks, s) }
}

// UseClock sets the clock of the repositories, planners and journal.
func UseClock(now func() time.Time) ServiceOption { return func(o *serviceOptions) { o.now = now } }

// New builds the service from cfg. Storage is initialised for every
// configured vehicle.
func New(ctx context.Context, cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	s := &Service{
		cfg:       cfg,
		log:       infralogger.New("service"),
		byVehicle: make(map[string]*Coordinator),
		updates:   eventbus.NewTyped[events.TripsUpdated](),
		refreshed: eventbus.NewTyped[events.SnapshotRefreshed](),
		sink:      coremetrics.NewMultiSink(),
	}
	if err := s.build(ctx, o); err != nil {
		if cerr := s.Close(); cerr != nil {
			s.log.Warnf("cleanup after failed start: %v", cerr)
		}
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context, o serviceOptions) error {
	cfg := s.cfg
	var err error

	s.monitor = o.monitor
	if s.monitor == nil {
		if s.monitor, err = inframon.NewSentryMonitor(cfg.Sentry); err != nil {
			return fmt.Errorf("sentry: %w", err)
		}
	}
	if s.loc, err = cfg.Planner.Location(); err != nil {
		return err
	}

	s.store = o.store
	if s.store == nil {
		if s.store, err = store.New(ctx, cfg.Storage); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	s.journal = o.journal
	if s.journal == nil {
		if s.journal, err = infrajournal.New(cfg.Journal); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	if err := s.buildSinks(o); err != nil {
		return err
	}

	s.registry = trips.NewRegistry(s.store,
		trips.WithNotifier(NewBusNotifier(s.updates)),
		trips.WithLocation(s.loc),
		trips.WithClock(o.now),
	)
	for _, v := range cfg.Vehicles {
		id := v.ID()
		vlog := infralogger.ForVehicle("trips", id)
		m, err := s.registry.Register(id, trips.WithLogger(vlog))
		if err != nil {
			return err
		}
		if err := m.Setup(ctx); err != nil {
			return fmt.Errorf("setup %s: %w", id, err)
		}
		p := planner.New(m,
			planner.WithVehicleID(id),
			planner.WithLocation(s.loc),
			planner.WithClock(o.now),
			planner.WithHorizon(cfg.Planner.HorizonDays),
			planner.WithLogger(infralogger.ForVehicle("planner", id)),
			planner.WithMonitor(s.monitor),
		)
		c := NewCoordinator(CoordinatorConfig{
			VehicleID:       id,
			Planner:         p,
			Sink:            s.sink,
			ChargingPowerKW: v.ChargingPowerKW,
			Interval:        cfg.Planner.RefreshInterval(),
			Refreshed:       s.refreshed,
			Logger:          infralogger.ForVehicle("coordinator", id),
		})
		s.coords = append(s.coords, c)
		s.byVehicle[id] = c
		if s.publisher != nil {
			s.publisher.SetVehicleName(id, v.Name)
		}
	}

	s.commands = NewCommands(s.registry,
		WithJournal(s.journal),
		WithRecorder(s.sink),
		WithMonitor(s.monitor),
		WithLogger(infralogger.New("commands")),
		WithClock(o.now),
		WithEstimator(func(vehicleID string, km float64) float64 {
			v, ok := cfg.Vehicle(vehicleID)
			if !ok {
				return 0
			}
			return v.EstimateEnergy(km)
		}),
	)
	return nil
}

// buildSinks creates the metrics sinks and the Home Assistant publisher.
// "mqtt" entries of metrics.sinks are served by the MQTT connection.
func (s *Service) buildSinks(o serviceOptions) error {
	var cfgs []factory.ModuleConfig
	for _, c := range s.cfg.Metrics.Sinks {
		if c.Type != "mqtt" {
			cfgs = append(cfgs, c)
		}
	}
	if len(cfgs) > 0 {
		sink, err := coremetrics.NewSnapshotSink(cfgs)
		if err != nil {
			return fmt.Errorf("metrics sinks: %w", err)
		}
		s.sink.Add(sink)
	}
	for _, sink := range o.sinks {
		s.sink.Add(sink)
	}

	s.transport = o.transport
	if s.transport == nil && s.cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(s.cfg.MQTT, mqtt.WithMonitor(s.monitor))
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.client = client
		s.transport = client
	}
	if s.transport != nil {
		s.publisher = mqtt.NewStatePublisher(s.transport, s.cfg.MQTT, infralogger.New("ha_publisher"))
		s.sink.Add(s.publisher)
	}
	return nil
}

// Commands returns the command surface.
func (s *Service) Commands() *Commands { return s.commands }

// Registry returns the vehicle registry.
func (s *Service) Registry() *trips.Registry { return s.registry }

// Journal returns the command journal.
func (s *Service) Journal() corejournal.Store { return s.journal }

// Location returns the planning time zone.
func (s *Service) Location() *time.Location { return s.loc }

// Refreshed returns the bus announcing finished refreshes.
func (s *Service) Refreshed() *eventbus.TypedBus[events.SnapshotRefreshed] { return s.refreshed }

// Coordinators lists the coordinators in configuration order.
func (s *Service) Coordinators() []*Coordinator { return s.coords }

// Coordinator returns the coordinator of a vehicle.
func (s *Service) Coordinator(vehicleID string) (*Coordinator, error) {
	c, ok := s.byVehicle[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", trips.ErrUnknownVehicle, vehicleID)
	}
	return c, nil
}

// Run starts the coordinators and transports and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.updates, s.sink)
	for _, c := range s.coords {
		s.wg.Add(1)
		go func(c *Coordinator) {
			defer s.wg.Done()
			c.Run(ctx, s.updates)
		}(c)
	}
	if s.transport != nil {
		sub := mqtt.NewCommandSubscriber(s.transport, s.commands, s.cfg.MQTT, infralogger.New("mqtt_commands"))
		if err := sub.Start(ctx); err != nil {
			return err
		}
	}
	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := metrics.StartPromServer(ctx, ":"+port); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	s.log.Infof("serving %d vehicles", len(s.coords))
	<-ctx.Done()
	s.wg.Wait()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.client != nil {
		s.client.Disconnect()
	}
	s.updates.Close()
	s.refreshed.Close()
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	return errors.Join(errs...)
}
