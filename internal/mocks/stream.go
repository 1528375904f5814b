package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type PublishedEvent struct {
	Topic string
	Key   string
	Body  []byte
}

// RecordingPublisher keeps every published event in memory, JSON encoded the
// same way the Kafka stream encodes them.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

func (p *RecordingPublisher) Publish(topic, key string, event any) error {
	if p.Err != nil {
		return p.Err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Topic: topic, Key: key, Body: body})
	return nil
}

// On returns the events published on topic, in order.
func (p *RecordingPublisher) On(topic string) []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []PublishedEvent
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
