package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch1, unsub1 := bus.Subscribe()
	ch2, unsub2 := bus.Subscribe()
	defer unsub1()
	defer unsub2()

	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish("backtest.completed", map[string]string{"id": "abc"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, "backtest.completed", event.Type)
			assert.False(t, event.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, unsub := bus.Subscribe()
	unsub()

	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	unsub()
}

func TestBusPublishAfterUnsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	_, unsub := bus.Subscribe()
	unsub()

	// Must not panic or block.
	bus.Publish("backtest.started", nil)
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	ch, unsub := bus.Subscribe()
	defer unsub()

	// Fill the buffer and then some; the publisher must never block.
	for i := 0; i < 150; i++ {
		bus.Publish("tick", i)
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			require.Equal(t, 100, received)
			return
		}
	}
}
