package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventSightingCreated = "sighting-created"
	RealtimeEventGhostRenamed    = "ghost-renamed"
	RealtimeEventGhostCreated    = "ghost-created"
	RealtimeEventGhostDeleted    = "ghost-deleted"
	RealtimeEventCommentPosted   = "comment-posted"
	RealtimeEventTourCreated     = "tour-created"
	RealtimeEventTourMembership  = "tour-membership"
	RealtimeEventBusterChanged   = "ghost-buster-changed"
	RealtimeEventFightChanged    = "fight-changed"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSource               = "ghostwatch-api"
)

// RealtimeMessage is one live feed event. A zero UserID broadcasts to every
// subscriber; otherwise only that user's subscribers receive it.
type RealtimeMessage struct {
	UserID    int64
	EventType string
	Payload   any
	Timestamp time.Time
}

// RealtimeDispatcher fans messages out to SSE and WebSocket subscribers.
// Slow subscribers drop messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	userID int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a subscriber until ctx ends or cleanup is called.
// userID is zero for anonymous viewers, who only see broadcasts.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID int64) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		userID: userID,
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.register(subscriber)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregister(subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers {
		if message.UserID != 0 && subscriber.userID != message.UserID {
			continue
		}
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) register(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregister(subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if subscriber, ok := d.subscribers[subscriberID]; ok {
		delete(d.subscribers, subscriberID)
		close(subscriber.stream)
	}
}
