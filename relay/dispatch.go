package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

// Descriptor binds a channel name to its handler. Immutable once built.
type Descriptor struct {
	Channel string
	Handler Handler
}

type patternEntry struct {
	pattern string
	g       glob.Glob
	handler Handler
}

// Dispatch maps channel names to handlers. Exact entries take precedence;
// glob patterns match in registration order. Supplied by the hosting
// application before the registry starts.
type Dispatch struct {
	mu       sync.RWMutex
	exact    map[string]Handler
	order    []string
	patterns []patternEntry
}

// NewDispatch creates an empty dispatch table
func NewDispatch() *Dispatch {
	return &Dispatch{
		exact: make(map[string]Handler),
	}
}

// Register binds a handler to an exact channel name.
// Re-registering a channel replaces its handler.
func (d *Dispatch) Register(channel string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.exact[channel]; !exists {
		d.order = append(d.order, channel)
	}
	d.exact[channel] = handler
}

// RegisterFunc binds a plain function to an exact channel name
func (d *Dispatch) RegisterFunc(channel string, fn func(ctx context.Context, payload Payload) error) {
	d.Register(channel, HandlerFunc(fn))
}

// RegisterPattern binds a handler to a glob pattern (e.g. "shard.*").
// Patterns are consulted only when no exact entry matches.
func (d *Dispatch) RegisterPattern(pattern string, handler Handler) error {
	g, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid channel pattern %q: %w", pattern, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.patterns = append(d.patterns, patternEntry{pattern: pattern, g: g, handler: handler})
	return nil
}

// Lookup returns the handler for a channel name
func (d *Dispatch) Lookup(channel string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if h, ok := d.exact[channel]; ok {
		return h, true
	}
	for _, entry := range d.patterns {
		if entry.g.Match(channel) {
			return entry.handler, true
		}
	}
	return nil, false
}

// Descriptors returns one descriptor per exactly-registered channel, in
// registration order.
func (d *Dispatch) Descriptors() []Descriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(d.order))
	for _, channel := range d.order {
		descriptors = append(descriptors, Descriptor{Channel: channel, Handler: d.exact[channel]})
	}
	return descriptors
}

// DescriptorsFor resolves the given channel names against the table,
// including pattern entries. Channels without a handler are skipped with a
// warning so one missing registration does not block the rest.
func (d *Dispatch) DescriptorsFor(channels []string) []Descriptor {
	descriptors := make([]Descriptor, 0, len(channels))
	for _, channel := range channels {
		handler, ok := d.Lookup(channel)
		if !ok {
			log.Warn().Str("channel", channel).Msg("No handler registered for channel, skipping")
			continue
		}
		descriptors = append(descriptors, Descriptor{Channel: channel, Handler: handler})
	}
	return descriptors
}
