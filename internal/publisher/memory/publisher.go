// Package memory records run notifications in process so sinks can be
// exercised without a broker.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one recorded publish.
type Message struct {
	ID      string
	Key     string
	Payload any
}

// Publisher keeps every published payload, grouped by ordering key.
type Publisher struct {
	mu    sync.Mutex
	seq   int
	log   []Message
	byKey map[string][]int
	err   error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{byKey: make(map[string][]int)}
}

// FailWith makes subsequent publishes return err. A nil err clears it.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Publish records payload under key.
func (p *Publisher) Publish(ctx context.Context, key string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.byKey[key] = append(p.byKey[key], len(p.log))
	p.log = append(p.log, Message{ID: id, Key: key, Payload: payload})
	return id, nil
}

// Messages returns every recorded publish in order.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.log...)
}

// ForKey returns the publishes recorded under key in order.
func (p *Publisher) ForKey(key string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.byKey[key]
	out := make([]Message, 0, len(idx))
	for _, i := range idx {
		out = append(out, p.log[i])
	}
	return out
}
