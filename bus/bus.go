// Package bus is the client boundary to the pub/sub transport. The relay is
// a consumer of a bus, never the bus itself.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TheShubhendra/marriagebot/cfg"
)

// ErrClosed is returned by Next when the subscription's message stream has
// ended and no further messages will arrive.
var ErrClosed = errors.New("bus: subscription closed")

// Subscription is one live subscription to a named channel.
type Subscription interface {
	// Channel returns the channel name this subscription listens on.
	Channel() string
	// Next blocks until the next raw message arrives. Context cancellation
	// interrupts the wait promptly. ErrClosed signals the channel stream has
	// ended; any other error is a transport failure.
	Next(ctx context.Context) ([]byte, error)
	// Unsubscribe tears down the underlying bus subscription. Best-effort:
	// callers log failures rather than retry.
	Unsubscribe() error
}

// Bus is a connected pub/sub client.
type Bus interface {
	// Subscribe opens a subscription to the named channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	// Close releases the client connection and any open subscriptions.
	Close() error
}

// Factory is a function that creates a Bus from a configuration
type Factory func(config cfg.BusConfiguration) (Bus, error)

var (
	factories = make(map[cfg.BusType]Factory)
	factoryMu sync.RWMutex
)

// Register registers a bus factory for a type
func Register(busType cfg.BusType, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[busType] = factory
}

// New creates a bus client based on the configuration
func New(config cfg.BusConfiguration) (Bus, error) {
	factoryMu.RLock()
	factory, exists := factories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown bus type: %s", config.Type)
	}

	return factory(config)
}
