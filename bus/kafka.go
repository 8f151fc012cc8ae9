package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/TheShubhendra/marriagebot/cfg"
)

const (
	DefaultKafkaMinBytes = 1
	DefaultKafkaMaxBytes = 1 << 20 // 1MB
)

func init() {
	Register(cfg.BusKafka, func(config cfg.BusConfiguration) (Bus, error) {
		return NewKafkaBus(config.KafkaBrokers, config.KafkaGroupID)
	})
}

// KafkaBus implements the Bus interface over Kafka consumers.
// Each channel maps to a topic with a dedicated reader, so per-channel
// ordering follows partition order within the topic.
type KafkaBus struct {
	brokers []string
	groupID string

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewKafkaBus creates a Kafka-backed bus client
func NewKafkaBus(brokers []string, groupID string) (*KafkaBus, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka bus requires at least one broker address")
	}

	return &KafkaBus{brokers: brokers, groupID: groupID}, nil
}

// Subscribe creates a reader for the channel's topic
func (b *KafkaBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		GroupID:  b.groupID,
		Topic:    channel,
		MinBytes: DefaultKafkaMinBytes,
		MaxBytes: DefaultKafkaMaxBytes,
	})

	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	return &kafkaSubscription{channel: channel, reader: reader}, nil
}

// Close closes every reader opened through this bus
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	readers := b.readers
	b.readers = nil
	b.mu.Unlock()

	var errs []error
	for _, reader := range readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type kafkaSubscription struct {
	channel string
	reader  *kafka.Reader
	closed  atomic.Bool
}

func (s *kafkaSubscription) Channel() string {
	return s.channel
}

func (s *kafkaSubscription) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		// A closed reader surfaces io.EOF
		if errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return msg.Value, nil
}

func (s *kafkaSubscription) Unsubscribe() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.reader.Close()
}
