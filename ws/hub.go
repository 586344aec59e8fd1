package ws

// Hub keeps the connected dashboards and fans events out to the ones that
// subscribed to the event's topic.

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/c14220110/clinic-queue/internal/events"
)

var ErrHubClosed = errors.New("websocket hub closed")

// Client is one websocket connection.
type Client struct {
	Conn   *websocket.Conn
	Send   chan []byte
	topics map[string]bool
}

// wants reports whether the client subscribed to topic. No subscription means everything.
func (c *Client) wants(topic string) bool {
	return len(c.topics) == 0 || c.topics[topic]
}

type message struct {
	topic string
	data  []byte
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
	logger     zerolog.Logger
}

var _ events.Sink = (*Hub)(nil)

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			delete(h.clients, client)
			close(client.Send)
		}
		h.count.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.count.Add(1)
			h.logger.Debug().Int64("clients", h.count.Load()).Msg("websocket client registered")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.count.Add(-1)
				h.logger.Debug().Int64("clients", h.count.Load()).Msg("websocket client unregistered")
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.topic) {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					// Slow consumer.
					close(client.Send)
					delete(h.clients, client)
					h.count.Add(-1)
				}
			}
		}
	}
}

func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

func (h *Hub) Name() string { return "ws" }

// Send implements events.Sink.
func (h *Hub) Send(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message{topic: e.Topic, data: data}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
