package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/evtrip/core/logger"
	"github.com/kilianp07/evtrip/core/model"
	"github.com/kilianp07/evtrip/core/planner"
)

type sensor struct {
	Key         string
	Name        string
	Unit        string
	DeviceClass string
	Icon        string
	Template    string
	Attributes  bool
}

var sensors = []sensor{
	{Key: "recurring_trips_count", Name: "Recurring trips count", Icon: "mdi:repeat", Template: "{{ value_json.recurring_trips_count }}"},
	{Key: "punctual_trips_count", Name: "Punctual trips count", Icon: "mdi:calendar", Template: "{{ value_json.punctual_trips_count }}"},
	{Key: "trips_list", Name: "Trips list", Icon: "mdi:format-list-bulleted", Template: "{{ value_json.trips_count }}", Attributes: true},
	{Key: "next_trip", Name: "Next trip", Icon: "mdi:car-clock", Template: "{{ value_json.next_trip_description }}"},
	{Key: "next_deadline", Name: "Next deadline", DeviceClass: "timestamp", Template: "{{ value_json.next_deadline }}"},
	{Key: "kwh_today", Name: "kWh needed today", Unit: "kWh", Icon: "mdi:lightning-bolt", Template: "{{ value_json.kwh_today }}"},
	{Key: "hours_today", Name: "Charging hours today", Unit: "h", Icon: "mdi:timer-outline", Template: "{{ value_json.hours_today }}"},
}

type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type discoveryConfig struct {
	Name                   string `json:"name"`
	UniqueID               string `json:"unique_id"`
	ObjectID               string `json:"object_id"`
	StateTopic             string `json:"state_topic"`
	ValueTemplate          string `json:"value_template"`
	Unit                   string `json:"unit_of_measurement,omitempty"`
	DeviceClass            string `json:"device_class,omitempty"`
	Icon                   string `json:"icon,omitempty"`
	JSONAttributesTopic    string `json:"json_attributes_topic,omitempty"`
	JSONAttributesTemplate string `json:"json_attributes_template,omitempty"`
	Device                 device `json:"device"`
}

type statePayload struct {
	planner.Snapshot
	NextTripDescription string  `json:"next_trip_description"`
	NextDeadline        *string `json:"next_deadline"`
}

// StatePublisher exposes snapshots to Home Assistant: discovery configs are
// announced once per vehicle, then every snapshot is published as a retained
// JSON state message.
type StatePublisher struct {
	tr     Transport
	base   string
	prefix string
	retain bool
	log    logger.Logger

	mu        sync.Mutex
	names     map[string]string
	announced map[string]bool
}

// NewStatePublisher creates a publisher using the topics of cfg.
func NewStatePublisher(tr Transport, cfg Config, log logger.Logger) *StatePublisher {
	if log == nil {
		log = logger.Nop{}
	}
	base := cfg.BaseTopic
	if base == "" {
		base = "ev_trip_planner"
	}
	prefix := cfg.DiscoveryPrefix
	if prefix == "" {
		prefix = "homeassistant"
	}
	return &StatePublisher{
		tr:        tr,
		base:      base,
		prefix:    prefix,
		retain:    cfg.Retained(),
		log:       log,
		names:     make(map[string]string),
		announced: make(map[string]bool),
	}
}

// SetVehicleName sets the device name shown for a vehicle.
func (p *StatePublisher) SetVehicleName(vehicleID, name string) {
	p.mu.Lock()
	p.names[vehicleID] = name
	p.mu.Unlock()
}

// StateTopic returns the state topic of a vehicle.
func (p *StatePublisher) StateTopic(vehicleID string) string {
	return fmt.Sprintf("%s/%s/state", p.base, vehicleID)
}

// DiscoveryTopic returns the discovery config topic of one sensor.
func (p *StatePublisher) DiscoveryTopic(vehicleID, key string) string {
	return fmt.Sprintf("%s/sensor/%s_%s/%s/config", p.prefix, p.base, vehicleID, key)
}

// Announce publishes the discovery configs of a vehicle.
func (p *StatePublisher) Announce(vehicleID string) error {
	p.mu.Lock()
	name := p.names[vehicleID]
	p.mu.Unlock()
	if name == "" {
		name = vehicleID
	}
	dev := device{
		Identifiers:  []string{p.base + "_" + vehicleID},
		Name:         name,
		Manufacturer: "evtrip",
		Model:        "EV trip planner",
	}
	for _, s := range sensors {
		cfg := discoveryConfig{
			Name:          s.Name,
			UniqueID:      vehicleID + "_" + s.Key,
			ObjectID:      vehicleID + "_" + s.Key,
			StateTopic:    p.StateTopic(vehicleID),
			ValueTemplate: s.Template,
			Unit:          s.Unit,
			DeviceClass:   s.DeviceClass,
			Icon:          s.Icon,
			Device:        dev,
		}
		if s.Attributes {
			cfg.JSONAttributesTopic = p.StateTopic(vehicleID)
			cfg.JSONAttributesTemplate = "{{ {'trips': value_json.trips} | tojson }}"
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		if err := p.tr.Publish(p.DiscoveryTopic(vehicleID, s.Key), payload, p.retain, "discovery"); err != nil {
			return fmt.Errorf("announce %s: %w", s.Key, err)
		}
	}
	p.mu.Lock()
	p.announced[vehicleID] = true
	p.mu.Unlock()
	p.log.Infof("announced %d sensors for %s", len(sensors), vehicleID)
	return nil
}

// RecordSnapshot announces the vehicle if needed and publishes its state.
func (p *StatePublisher) RecordSnapshot(snap planner.Snapshot) error {
	p.mu.Lock()
	announced := p.announced[snap.VehicleID]
	p.mu.Unlock()
	if !announced {
		if err := p.Announce(snap.VehicleID); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(newStatePayload(snap))
	if err != nil {
		return err
	}
	return p.tr.Publish(p.StateTopic(snap.VehicleID), payload, p.retain, "state")
}

func newStatePayload(snap planner.Snapshot) statePayload {
	s := statePayload{Snapshot: snap, NextTripDescription: snap.NextDescription()}
	if s.Trips == nil {
		s.Trips = []model.Trip{}
	}
	if snap.NextTrip != nil {
		d := snap.NextTrip.At.Format(time.RFC3339)
		s.NextDeadline = &d
	}
	return s
}
