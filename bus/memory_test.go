package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheShubhendra/marriagebot/cfg"
)

func memoryTestConfig() cfg.BusConfiguration {
	return cfg.BusConfiguration{Type: cfg.BusMemory, PayloadFormat: "json"}
}

func TestMemory_PublishSubscribe(t *testing.T) {
	hub := NewMemory()
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", sub.Channel())

	hub.Publish("alpha", []byte("hello"))

	payload, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestMemory_DeliveryOrderPerChannel(t *testing.T) {
	hub := NewMemory()
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "ordered")
	require.NoError(t, err)

	const n = 32
	for i := 0; i < n; i++ {
		hub.Publish("ordered", []byte(fmt.Sprintf("msg-%d", i)))
	}

	for i := 0; i < n; i++ {
		payload, err := sub.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), string(payload))
	}
}

func TestMemory_ChannelsAreIsolated(t *testing.T) {
	hub := NewMemory()
	defer hub.Close()

	alpha, err := hub.Subscribe(context.Background(), "alpha")
	require.NoError(t, err)
	beta, err := hub.Subscribe(context.Background(), "beta")
	require.NoError(t, err)

	hub.Publish("alpha", []byte("for-alpha"))

	payload, err := alpha.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "for-alpha", string(payload))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = beta.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_NextAfterUnsubscribeDrainsThenCloses(t *testing.T) {
	hub := NewMemory()
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "alpha")
	require.NoError(t, err)

	hub.Publish("alpha", []byte("buffered"))
	require.NoError(t, sub.Unsubscribe())

	// Buffered messages survive the unsubscribe, then the stream reports closed
	payload, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "buffered", string(payload))

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemory_PublishAfterUnsubscribeDoesNotBlock(t *testing.T) {
	hub := NewMemory()
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), "alpha")
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultMessageBufferSize*2; i++ {
			hub.Publish("alpha", []byte("late"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on an unsubscribed channel")
	}
}

func TestMemory_CloseTearsDownSubscribers(t *testing.T) {
	hub := NewMemory()

	sub, err := hub.Subscribe(context.Background(), "alpha")
	require.NoError(t, err)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = hub.Subscribe(context.Background(), "alpha")
	assert.Error(t, err)
}

func TestMemory_FactoryIsRegistered(t *testing.T) {
	b, err := New(memoryTestConfig())
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.(*Memory)
	assert.True(t, ok)
}
