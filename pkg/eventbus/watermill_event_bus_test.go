package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pressgate/pressgate/pkg/channels/gochannel"
	"github.com/pressgate/pressgate/pkg/eventbus"
	"github.com/pressgate/pressgate/pkg/events"
	"github.com/pressgate/pressgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		require.NoError(t, bus.Close())
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.WorkflowInitiated, 1)

	err := bus.Handle(events.WorkflowInitiatedEvent, func(_ context.Context, event interface{}) error {
		initiated, ok := event.(*events.WorkflowInitiated)
		require.True(t, ok)

		received <- initiated

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	published := events.WorkflowInitiated{
		BaseEvent:    events.NewBaseEvent(events.WorkflowInitiatedEvent, "guid-1", 42),
		WorkflowType: models.WorkflowTypePublish,
		AuthorID:     7,
		GroupID:      100,
	}

	require.NoError(t, bus.Publish(ctx, "42", published))

	select {
	case got := <-received:
		assert.Equal(t, published.InstanceGUID, got.InstanceGUID)
		assert.Equal(t, 42, got.NodeID)
		assert.Equal(t, models.WorkflowTypePublish, got.WorkflowType)
		assert.Equal(t, 7, got.AuthorID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBus_UnhandledTypeIsAcked(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := newTestBus(t)

	received := make(chan struct{}, 1)

	err := bus.Handle(events.WorkflowCancelledEvent, func(_ context.Context, _ interface{}) error {
		received <- struct{}{}

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	// A rejected event has no handler registered; it must not block the
	// cancelled event behind it.
	rejected := events.WorkflowRejected{
		BaseEvent: events.NewBaseEvent(events.WorkflowRejectedEvent, "guid-1", 42),
	}
	require.NoError(t, bus.Publish(ctx, "42", rejected))

	cancelled := events.WorkflowCancelled{
		BaseEvent:     events.NewBaseEvent(events.WorkflowCancelledEvent, "guid-2", 43),
		CancelledByID: 9,
	}
	require.NoError(t, bus.Publish(ctx, "43", cancelled))

	select {
	case <-received:
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
