package metrics

import "github.com/kilianp07/evtrip/core/factory"

var sinkRegistry = factory.NewRegistry[SnapshotSink]()

// RegisterSink adds a sink factory identified by name.
func RegisterSink(name string, f factory.Factory[SnapshotSink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes lists the registered sink names.
func SinkTypes() []string { return sinkRegistry.Names() }

// NewSnapshotSink creates a SnapshotSink from the provided configuration.
func NewSnapshotSink(cfgs []factory.ModuleConfig) (SnapshotSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]SnapshotSink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}
