package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/TheShubhendra/marriagebot/cfg"
)

// defaultMessageBufferSize is the buffer size for per-subscriber channels.
// Sized so a publisher bursting ahead of a busy handler does not block
// immediately; beyond that Publish waits for the subscriber to drain.
const defaultMessageBufferSize = 64

func init() {
	Register(cfg.BusMemory, func(config cfg.BusConfiguration) (Bus, error) {
		return NewMemory(), nil
	})
}

// Memory is an in-process bus hub. It backs tests and hosts that embed the
// relay and its publishers in one process.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySubscription
	nextID atomic.Uint64
	closed atomic.Bool
}

// NewMemory creates a new in-process bus hub
func NewMemory() *Memory {
	return &Memory{
		subs: make(map[string][]*memorySubscription),
	}
}

// Publish delivers a payload to every subscriber of the channel, in order.
// Delivery blocks on subscribers whose buffers are full; it never drops.
func (m *Memory) Publish(channel string, payload []byte) {
	m.mu.RLock()
	subs := append([]*memorySubscription(nil), m.subs[channel]...)
	m.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- payload:
		case <-sub.done:
			// Subscriber went away mid-publish
		}
	}
}

// Subscribe registers a new subscriber for the channel
func (m *Memory) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("memory bus is closed")
	}

	sub := &memorySubscription{
		id:      m.nextID.Add(1),
		channel: channel,
		ch:      make(chan []byte, defaultMessageBufferSize),
		done:    make(chan struct{}),
		hub:     m,
	}

	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], sub)
	m.mu.Unlock()

	return sub, nil
}

// Close tears down every open subscription
func (m *Memory) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string][]*memorySubscription)
	m.mu.Unlock()

	for _, channelSubs := range subs {
		for _, sub := range channelSubs {
			sub.close()
		}
	}
	return nil
}

func (m *Memory) remove(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	channelSubs := m.subs[sub.channel]
	for i, s := range channelSubs {
		if s.id == sub.id {
			m.subs[sub.channel] = append(channelSubs[:i], channelSubs[i+1:]...)
			break
		}
	}
}

type memorySubscription struct {
	id      uint64
	channel string
	ch      chan []byte
	done    chan struct{}
	hub     *Memory
	closed  atomic.Bool
}

func (s *memorySubscription) Channel() string {
	return s.channel
}

func (s *memorySubscription) Next(ctx context.Context) ([]byte, error) {
	// Drain buffered messages before reporting closure
	select {
	case payload := <-s.ch:
		return payload, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload := <-s.ch:
		return payload, nil
	case <-s.done:
		return nil, ErrClosed
	}
}

func (s *memorySubscription) Unsubscribe() error {
	s.hub.remove(s)
	s.close()
	return nil
}

// close closes the done channel if not already closed
func (s *memorySubscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}
