package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openig/igbot/pkg/domain"
)

func TestSubscribeReceivesMatchingEvents(t *testing.T) {
	bus := New()
	defer bus.Close()

	var got []domain.Event
	bus.Subscribe(domain.EventMessageCreated, func(ev domain.Event) {
		got = append(got, ev)
	})

	bus.Publish(domain.NewEvent(domain.EventMessageCreated, "m1", "hello"))
	bus.Publish(domain.NewEvent(domain.EventMessageSent, "m2", "other type"))

	require.Len(t, got, 1)
	assert.Equal(t, domain.EntityID("m1"), got[0].AggregateID())
	assert.Equal(t, "hello", got[0].Payload())
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := New()
	defer bus.Close()

	var count int
	bus.SubscribeAll(func(domain.Event) { count++ })

	bus.Publish(domain.NewEvent(domain.EventMessageCreated, "m1", nil))
	bus.Publish(domain.NewEvent(domain.EventClientConnected, "c1", nil))

	assert.Equal(t, 2, count)
}

func TestCancelDetachesHandler(t *testing.T) {
	bus := New()
	defer bus.Close()

	var count int
	cancel := bus.Subscribe(domain.EventMessageCreated, func(domain.Event) { count++ })

	bus.Publish(domain.NewEvent(domain.EventMessageCreated, "m1", nil))
	cancel()
	cancel() // second cancel is a no-op
	bus.Publish(domain.NewEvent(domain.EventMessageCreated, "m2", nil))

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, bus.HandlerCount())
}

func TestHandlerMaySubscribeDuringDispatch(t *testing.T) {
	bus := New()
	defer bus.Close()

	var nested int
	bus.Subscribe(domain.EventMessageCreated, func(domain.Event) {
		bus.Subscribe(domain.EventMessageSent, func(domain.Event) { nested++ })
	})

	bus.Publish(domain.NewEvent(domain.EventMessageCreated, "m1", nil))
	bus.Publish(domain.NewEvent(domain.EventMessageSent, "m2", nil))

	assert.Equal(t, 1, nested)
}

func TestCloseDropsSubsequentPublishes(t *testing.T) {
	bus := New()

	var count int
	bus.Subscribe(domain.EventMessageCreated, func(domain.Event) { count++ })

	bus.Close()
	bus.Publish(domain.NewEvent(domain.EventMessageCreated, "m1", nil))

	assert.Equal(t, 0, count)
}
