package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/pkg/eventbus"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger("error", true)
	require.NoError(t, err)
	return log
}

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := New(testLogger(t))

	var a, b atomic.Int32
	bus.Subscribe(func(ctx context.Context, evt eventbus.Event) error {
		a.Add(1)
		return nil
	})
	bus.Subscribe(func(ctx context.Context, evt eventbus.Event) error {
		b.Add(1)
		return nil
	})

	bus.Publish(context.Background(), eventbus.Event{Group: eventbus.GroupBlocks})

	require.Equal(t, int32(1), a.Load())
	require.Equal(t, int32(1), b.Load())
}

func TestBus_SubscriberErrorDoesNotPropagate(t *testing.T) {
	bus := New(testLogger(t))

	bus.Subscribe(func(ctx context.Context, evt eventbus.Event) error {
		return errors.New("boom")
	})

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), eventbus.Event{Group: eventbus.GroupLogs})
	})
}

func TestBus_UnsubscribeRemovesSubscriber(t *testing.T) {
	bus := New(testLogger(t))

	var calls atomic.Int32
	unsubscribe := bus.Subscribe(func(ctx context.Context, evt eventbus.Event) error {
		calls.Add(1)
		return nil
	})
	unsubscribe()

	bus.Publish(context.Background(), eventbus.Event{Group: eventbus.GroupTransactions})
	require.Equal(t, int32(0), calls.Load())
}
