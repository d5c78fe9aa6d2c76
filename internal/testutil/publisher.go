package testutil

import (
	"context"
	"sync"
)

type Published struct {
	Topic   string
	Payload any
}

// RecordingPublisher captures every published message.
type RecordingPublisher struct {
	mu       sync.Mutex
	messages []Published
}

func (p *RecordingPublisher) Publish(ctx context.Context, topic string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Published{Topic: topic, Payload: payload})
}

func (p *RecordingPublisher) Messages() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.messages...)
}

func (p *RecordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, len(p.messages))
	for i, m := range p.messages {
		topics[i] = m.Topic
	}
	return topics
}
