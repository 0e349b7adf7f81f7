package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/evtrip/core/logger"
)

// Executor runs a named trip command for a vehicle.
type Executor interface {
	Execute(ctx context.Context, source, vehicleID, command string, args map[string]any) (any, error)
}

// CommandResult is published on <command topic>/result.
type CommandResult struct {
	RequestID string `json:"request_id,omitempty"`
	VehicleID string `json:"vehicle_id"`
	Command   string `json:"command"`
	OK        bool   `json:"ok"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CommandSubscriber listens on <base>/<vehicle>/command/<name> and runs
// each message through an Executor.
type CommandSubscriber struct {
	tr      Transport
	exec    Executor
	base    string
	log     logger.Logger
	timeout time.Duration
	ctx     context.Context
}

// NewCommandSubscriber creates a subscriber for the base topic of cfg.
func NewCommandSubscriber(tr Transport, exec Executor, cfg Config, log logger.Logger) *CommandSubscriber {
	if log == nil {
		log = logger.Nop{}
	}
	base := cfg.BaseTopic
	if base == "" {
		base = "ev_trip_planner"
	}
	return &CommandSubscriber{tr: tr, exec: exec, base: base, log: log, timeout: 10 * time.Second, ctx: context.Background()}
}

// CommandTopic returns the topic a command for vehicleID is sent to.
func (s *CommandSubscriber) CommandTopic(vehicleID, name string) string {
	return fmt.Sprintf("%s/%s/command/%s", s.base, vehicleID, name)
}

// Start subscribes to the command topics of every vehicle. Commands run
// with a context derived from ctx.
func (s *CommandSubscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	topic := s.base + "/+/command/+"
	if err := s.tr.Subscribe(topic, "command", func(t string, p []byte) {
		go s.handle(t, p)
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	s.log.Infof("listening for commands on %s", topic)
	return nil
}

func (s *CommandSubscriber) parseTopic(topic string) (vehicleID, name string, ok bool) {
	rest, found := strings.CutPrefix(topic, s.base+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "command" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}

func (s *CommandSubscriber) handle(topic string, payload []byte) {
	vehicleID, name, ok := s.parseTopic(topic)
	if !ok {
		s.log.Warnf("ignoring message on %s", topic)
		return
	}
	res := CommandResult{VehicleID: vehicleID, Command: name}
	args := map[string]any{}
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &args); err != nil {
			res.Error = fmt.Sprintf("invalid payload: %v", err)
			s.reply(topic, res)
			return
		}
	}
	if id, ok := args["request_id"].(string); ok {
		res.RequestID = id
		delete(args, "request_id")
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	out, err := s.exec.Execute(ctx, "mqtt", vehicleID, name, args)
	if err != nil {
		res.Error = err.Error()
	} else {
		res.OK = true
		res.Result = out
	}
	s.reply(topic, res)
}

func (s *CommandSubscriber) reply(topic string, res CommandResult) {
	b, err := json.Marshal(res)
	if err != nil {
		s.log.Errorf("encode result: %v", err)
		return
	}
	if err := s.tr.Publish(topic+"/result", b, false, "command"); err != nil {
		s.log.Errorf("publish result: %v", err)
	}
}
