package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{
		Type:   EventTaskCreated,
		TaskID: "task-1",
	})

	select {
	case event := <-sub:
		assert.Equal(t, EventTaskCreated, event.Type)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestHistoryKeepsPublishOrder(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	for _, typ := range []EventType{EventTaskCreated, EventTaskStarted, EventCapabilityRequested} {
		broker.Publish(&Event{Type: typ, TaskID: "task-1"})
	}
	broker.Publish(&Event{Type: EventTaskCreated, TaskID: "task-2"})

	history := broker.History("task-1")
	require.Len(t, history, 3)
	assert.Equal(t, EventTaskCreated, history[0].Type)
	assert.Equal(t, EventTaskStarted, history[1].Type)
	assert.Equal(t, EventCapabilityRequested, history[2].Type)
}
