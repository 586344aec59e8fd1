// Package events carries post-commit notifications from the services to the
// realtime channel (websocket) and to the message brokers (Kafka, SQS).
package events

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TypeAppointmentUpdated = "appointment.updated"
	TypeQueueUpdated       = "queue.updated"
	TypeStatsUpdated       = "dashboard.stats_updated"
	// TypeDashboardRecompute never leaves the process.
	TypeDashboardRecompute = "dashboard.recompute"

	TopicDashboard = "dashboard"
)

// RoomTopic is the topic of every event scoped to one examination room.
func RoomTopic(roomID int64) string {
	return fmt.Sprintf("room:%d", roomID)
}

type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Topic      string      `json:"topic"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
	// Local events only reach in-process listeners.
	Local bool `json:"-"`
}

func New(typ, topic string, data interface{}) Event {
	return Event{ID: uuid.NewString(), Type: typ, Topic: topic, OccurredAt: time.Now().UTC(), Data: data}
}

// RecomputeRequest asks the dashboard to refresh one day's stats.
type RecomputeRequest struct {
	Date   string `json:"date"`
	RoomID int64  `json:"room_id"`
}

func Recompute(date string, roomID int64) Event {
	e := New(TypeDashboardRecompute, TopicDashboard, RecomputeRequest{Date: date, RoomID: roomID})
	e.Local = true
	return e
}

// Publisher is what the services depend on. Publish never blocks and never fails.
type Publisher interface {
	Publish(events ...Event)
}

// Sink delivers events outside the process.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

type Listener func(ctx context.Context, e Event)

// Bus fans events out to sinks and listeners on a single worker goroutine.
type Bus struct {
	logger      zerolog.Logger
	ch          chan Event
	sinks       []Sink
	SendTimeout time.Duration

	mu        sync.RWMutex
	listeners map[string][]Listener
	closed    bool

	wg sync.WaitGroup
}

func NewBus(buffer int, logger zerolog.Logger, sinks ...Sink) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{
		logger:      logger,
		ch:          make(chan Event, buffer),
		sinks:       sinks,
		SendTimeout: 5 * time.Second,
		listeners:   make(map[string][]Listener),
	}
}

// Subscribe registers an in-process listener for one event type.
func (b *Bus) Subscribe(eventType string, l Listener) {
	b.mu.Lock()
	b.listeners[eventType] = append(b.listeners[eventType], l)
	b.mu.Unlock()
}

// Publish enqueues events. A full buffer or a closed bus drops the event.
func (b *Bus) Publish(events ...Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range events {
		if b.closed {
			b.logger.Warn().Str("type", e.Type).Msg("event bus closed, event dropped")
			continue
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = time.Now().UTC()
		}
		select {
		case b.ch <- e:
		default:
			b.logger.Warn().Str("type", e.Type).Str("id", e.ID).Msg("event buffer full, event dropped")
		}
	}
}

// Start launches the worker. Call Close to drain and stop it.
func (b *Bus) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for e := range b.ch {
			b.dispatch(e)
		}
	}()
}

func (b *Bus) dispatch(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.SendTimeout)
	defer cancel()

	b.mu.RLock()
	ls := append([]Listener(nil), b.listeners[e.Type]...)
	b.mu.RUnlock()
	for _, l := range ls {
		b.safeListen(ctx, l, e)
	}

	if e.Local {
		return
	}
	for _, s := range b.sinks {
		if err := s.Send(ctx, e); err != nil {
			b.logger.Error().Err(err).
				Str("sink", s.Name()).
				Str("type", e.Type).
				Str("id", e.ID).
				Msg("failed to deliver event")
		}
	}
}

func (b *Bus) safeListen(ctx context.Context, l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("type", e.Type).Str("panic", fmt.Sprint(r)).Msg("event listener panicked")
		}
	}()
	l(ctx, e)
}

// Close stops accepting events, waits for the queue to drain and closes the
// sinks that hold connections.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()

	b.wg.Wait()

	var firstErr error
	for _, s := range b.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s sink: %w", s.Name(), err)
			}
		}
	}
	return firstErr
}

// Recorder is a Publisher that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(events ...Event) {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
