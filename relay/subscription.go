package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TheShubhendra/marriagebot/bus"
	"github.com/TheShubhendra/marriagebot/encoding"
	"github.com/TheShubhendra/marriagebot/telemetry"
)

// State of a channel subscription
type State int32

const (
	StateCreated State = iota
	StateSubscribing
	StateListening
	StateUnsubscribing
	StateClosed
	StateFailed // Terminal, reached on unrecoverable bus errors
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateListening:
		return "LISTENING"
	case StateUnsubscribing:
		return "UNSUBSCRIBING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// ChannelSubscription owns one bus subscription: subscribe, receive loop,
// decode, dispatch, unsubscribe. Exactly one goroutine runs the loop; the
// registry owns teardown.
type ChannelSubscription struct {
	channel        string
	handler        Handler
	bus            bus.Bus
	codec          encoding.Codec
	handlerTimeout time.Duration

	state    atomic.Int32
	sub      bus.Subscription
	listened atomic.Bool
}

func newChannelSubscription(b bus.Bus, codec encoding.Codec, d Descriptor, handlerTimeout time.Duration) *ChannelSubscription {
	return &ChannelSubscription{
		channel:        d.Channel,
		handler:        d.Handler,
		bus:            b,
		codec:          codec,
		handlerTimeout: handlerTimeout,
	}
}

// Channel returns the channel name
func (c *ChannelSubscription) Channel() string {
	return c.channel
}

// State returns the current state
func (c *ChannelSubscription) State() State {
	return State(c.state.Load())
}

func (c *ChannelSubscription) setState(s State) {
	c.state.Store(int32(s))
}

// Run subscribes to the channel and processes messages until ctx is
// cancelled or the stream closes. A cancelled Run returns nil; the owner
// must still call teardown to issue the unsubscribe step, cancellation alone
// does not release the bus-side subscription.
func (c *ChannelSubscription) Run(ctx context.Context) error {
	c.setState(StateSubscribing)
	log.Info().Str("channel", c.channel).Msg("Subscribing to channel")

	sub, err := c.bus.Subscribe(ctx, c.channel)
	if err != nil {
		c.setState(StateFailed)
		telemetry.SubscribeFailuresTotal.Inc()
		return fmt.Errorf("failed to subscribe to %s: %w", c.channel, err)
	}

	c.sub = sub
	c.listened.Store(true)
	c.setState(StateListening)
	telemetry.ActiveSubscriptions.Inc()
	defer telemetry.ActiveSubscriptions.Dec()

	log.Info().Str("channel", c.channel).Msg("Listening for messages")

	for {
		data, err := sub.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, bus.ErrClosed):
				log.Info().Str("channel", c.channel).Msg("Channel stream closed by bus")
				return nil
			default:
				c.setState(StateFailed)
				return fmt.Errorf("receive failed on %s: %w", c.channel, err)
			}
		}

		c.process(ctx, data)
	}
}

// process decodes one message and invokes the handler. Errors are contained
// here: at most the current message is lost, the loop always continues.
func (c *ChannelSubscription) process(ctx context.Context, data []byte) {
	telemetry.MessagesTotal.With(c.channel).Inc()

	var payload Payload
	if err := c.codec.Unmarshal(data, &payload); err != nil {
		telemetry.DecodeErrorsTotal.With(c.channel).Inc()
		log.Warn().
			Err(err).
			Str("channel", c.channel).
			Int("bytes", len(data)).
			Msg("Dropping malformed payload")
		return
	}

	c.invoke(ctx, payload)
}

func (c *ChannelSubscription) invoke(ctx context.Context, payload Payload) {
	if c.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.handlerTimeout)
		defer cancel()
	}

	// A panicking handler must not take down the receive loop
	defer func() {
		if r := recover(); r != nil {
			telemetry.HandlerErrorsTotal.With(c.channel).Inc()
			log.Error().
				Str("channel", c.channel).
				Interface("panic", r).
				Msg("Handler panicked")
		}
	}()

	start := time.Now()
	if err := c.handler.Handle(ctx, payload); err != nil {
		telemetry.HandlerErrorsTotal.With(c.channel).Inc()
		log.Error().
			Err(err).
			Str("channel", c.channel).
			Msg("Handler failed")
	}
	telemetry.HandlerDurationSeconds.Observe(time.Since(start).Seconds())
}

// teardown issues the unsubscribe step. Called by the registry after the run
// loop has exited; the unsubscribe is attempted for every channel that
// reached LISTENING at least once, even one that later failed.
func (c *ChannelSubscription) teardown() {
	if !c.listened.Load() {
		if c.State() != StateFailed {
			c.setState(StateClosed)
		}
		return
	}

	failed := c.State() == StateFailed
	if !failed {
		c.setState(StateUnsubscribing)
	}

	log.Info().Str("channel", c.channel).Msg("Unsubscribing from channel")
	if err := c.sub.Unsubscribe(); err != nil {
		// Best-effort cleanup, a failure here is not fatal
		log.Warn().Err(err).Str("channel", c.channel).Msg("Unsubscribe failed")
	}

	if !failed {
		c.setState(StateClosed)
	}
}
