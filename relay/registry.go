package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TheShubhendra/marriagebot/bus"
	"github.com/TheShubhendra/marriagebot/encoding"
)

// RegistryConfig configures the subscription registry
type RegistryConfig struct {
	Bus            bus.Bus        // Connected bus client
	Codec          encoding.Codec // Payload wire format
	HandlerTimeout time.Duration  // Per-message handler deadline (0 = none)
}

type registryEntry struct {
	sub    *ChannelSubscription
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns the set of active channel subscriptions. It starts them
// concurrently and tears them down as a unit on shutdown.
type Registry struct {
	config  RegistryConfig
	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry creates a new subscription registry
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if config.Codec == nil {
		return nil, fmt.Errorf("payload codec is required")
	}

	return &Registry{
		config:  config,
		entries: make(map[string]*registryEntry),
	}, nil
}

// Start launches one channel subscription per descriptor and returns
// immediately; subscriptions run in the background.
func (r *Registry) Start(descriptors []Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := 0
	for _, d := range descriptors {
		if _, exists := r.entries[d.Channel]; exists {
			log.Warn().Str("channel", d.Channel).Msg("Channel already subscribed, skipping")
			continue
		}

		sub := newChannelSubscription(r.config.Bus, r.config.Codec, d, r.config.HandlerTimeout)
		ctx, cancel := context.WithCancel(context.Background())
		entry := &registryEntry{sub: sub, cancel: cancel, done: make(chan struct{})}
		r.entries[d.Channel] = entry

		go func() {
			defer close(entry.done)
			if err := sub.Run(ctx); err != nil {
				log.Error().Err(err).Str("channel", sub.Channel()).Msg("Channel subscription ended")
			}
		}()
		started++
	}

	log.Info().Int("channels", started).Msg("Subscription registry started")
}

// Shutdown cancels every running subscription and issues the unsubscribe
// step for each channel that reached LISTENING. Idempotent; teardown order
// across channels is unspecified, within a channel it is cancel then
// unsubscribe.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	log.Info().Int("channels", len(entries)).Msg("Stopping subscription registry")

	for _, entry := range entries {
		entry.cancel()
		<-entry.done
		entry.sub.teardown()
	}

	log.Info().Msg("Subscription registry stopped")
}

// States returns a snapshot of channel name to subscription state for every
// active entry.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]State, len(r.entries))
	for channel, entry := range r.entries {
		states[channel] = entry.sub.State()
	}
	return states
}
