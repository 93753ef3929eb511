package events

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventTaskCreated         EventType = "task.created"
	EventTaskStarted         EventType = "task.started"
	EventTaskCompleted       EventType = "task.completed"
	EventTaskFailed          EventType = "task.failed"
	EventTaskContinued       EventType = "task.continued"
	EventIterationRecorded   EventType = "iteration.recorded"
	EventCapabilityRequested EventType = "capability.requested"
	EventCapabilityDecided   EventType = "capability.decided"
	EventImageBuilt          EventType = "image.built"
	EventDeploymentCreated   EventType = "deployment.created"
	EventDeploymentApproved  EventType = "deployment.approved"
	EventDeploymentStarted   EventType = "deployment.started"
	EventDeploymentStopped   EventType = "deployment.stopped"
)

// Event represents a control-plane event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	TaskID    string
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution. The task execution
// timeline is assembled from the events published here plus the durable
// rows in storage.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}

	// Recent events per task, kept for the timeline endpoint
	history   map[string][]*Event
	historyMu sync.RWMutex
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
		history:     make(map[string][]*Event),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if event.TaskID != "" {
		b.historyMu.Lock()
		b.history[event.TaskID] = append(b.history[event.TaskID], event)
		b.historyMu.Unlock()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// History returns the events recorded for a task in publish order
func (b *Broker) History(taskID string) []*Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	events := b.history[taskID]
	out := make([]*Event, len(events))
	copy(out, events)
	return out
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
