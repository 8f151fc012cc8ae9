package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/TheShubhendra/marriagebot/cfg"
)

func init() {
	Register(cfg.BusNATS, func(config cfg.BusConfiguration) (Bus, error) {
		if config.NatsURL == "" {
			return nil, fmt.Errorf("nats bus requires nats_url")
		}
		return NewNatsBus(
			config.NatsURL,
			time.Duration(config.ReconnectWaitMS)*time.Millisecond,
			config.MaxReconnects,
		)
	})
}

// NatsBus implements the Bus interface over a core NATS connection
type NatsBus struct {
	nc *nats.Conn
}

// NewNatsBus connects to a NATS server. The connection retries in the
// background, so a bus that is briefly down at startup does not abort the
// process.
func NewNatsBus(url string, reconnectWait time.Duration, maxReconnects int) (*NatsBus, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NatsBus{nc: nc}, nil
}

// Subscribe opens a synchronous subscription to the channel. Messages queue
// inside the client until the caller drains them with Next, which preserves
// delivery order per channel.
func (b *NatsBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub, err := b.nc.SubscribeSync(channel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	return &natsSubscription{channel: channel, sub: sub}, nil
}

// Close releases the NATS connection
func (b *NatsBus) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}

type natsSubscription struct {
	channel string
	sub     *nats.Subscription
}

func (s *natsSubscription) Channel() string {
	return s.channel
}

func (s *natsSubscription) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return msg.Data, nil
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
