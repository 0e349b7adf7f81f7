package mqtt

import (
	"errors"
	"sync"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
	kind     string
}

// fakeTransport records publishes and lets tests push messages.
type fakeTransport struct {
	mu       sync.Mutex
	msgs     []published
	handlers map[string]Handler
	failOn   string
}

func (f *fakeTransport) Publish(topic string, payload []byte, retained bool, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && f.failOn == topic {
		return errors.New("publish failed")
	}
	f.msgs = append(f.msgs, published{topic: topic, payload: payload, retained: retained, kind: kind})
	return nil
}

func (f *fakeTransport) Subscribe(topic, _ string, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]Handler)
	}
	f.handlers[topic] = h
	return nil
}

func (f *fakeTransport) byTopic(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}
