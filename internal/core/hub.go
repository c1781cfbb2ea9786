package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/metrics"
)

const hubQueueSize = 256

// Publisher pushes a named payload to every client currently in a group.
// Delivery is best-effort and at-most-once.
type Publisher interface {
	Publish(group, eventName string, payload any) error
}

// Hub owns broadcast group membership. All state is confined to the Run goroutine,
// so events published in order to one group are delivered in that order.
type Hub struct {
	commands chan *Command
	done     chan struct{}
	groups   map[string]*Group
	clients  map[*Client]struct{}
	log      *zerolog.Logger
}

// NewHub creates a new hub instance. Call Run to start processing.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		commands: make(chan *Command, hubQueueSize),
		done:     make(chan struct{}),
		groups:   make(map[string]*Group),
		clients:  make(map[*Client]struct{}),
		log:      logger,
	}
}

// Run processes commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.Events)
			}
			h.clients = nil
			h.groups = nil
			return
		case cmd := <-h.commands:
			h.handle(cmd)
		}
	}
}

// RegisterClient attaches a connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.send(&Command{Kind: CommandRegister, Client: c})
}

// UnregisterClient detaches a connection; its Events channel is closed by the hub.
func (h *Hub) UnregisterClient(c *Client) {
	h.send(&Command{Kind: CommandUnregister, Client: c})
}

// Join subscribes the client to a group.
func (h *Hub) Join(c *Client, group string) {
	h.send(&Command{Kind: CommandJoin, Client: c, Group: group})
}

// Leave unsubscribes the client from a group.
func (h *Hub) Leave(c *Client, group string) {
	h.send(&Command{Kind: CommandLeave, Client: c, Group: group})
}

// Publish enqueues an event for a group without blocking the caller.
func (h *Hub) Publish(group, eventName string, payload any) error {
	cmd := &Command{
		Kind:  CommandPublish,
		Group: group,
		Event: &Event{Kind: EventPublished, Group: group, Name: eventName, Payload: payload},
	}
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.commands <- cmd:
		return nil
	default:
		metrics.BroadcastsDropped.WithLabelValues("hub_queue").Inc()
		return ErrHubSaturated
	}
}

func (h *Hub) send(cmd *Command) {
	select {
	case h.commands <- cmd:
	case <-h.done:
	}
}

func (h *Hub) handle(cmd *Command) {
	switch cmd.Kind {
	case CommandRegister:
		h.clients[cmd.Client] = struct{}{}
		metrics.ConnectedClients.Inc()
	case CommandUnregister:
		h.unregister(cmd.Client)
	case CommandJoin:
		h.join(cmd.Client, cmd.Group)
	case CommandLeave:
		h.leave(cmd.Client, cmd.Group)
	case CommandPublish:
		h.publish(cmd.Event)
	}
}

func (h *Hub) unregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for key := range c.groups {
		if g, ok := h.groups[key]; ok {
			g.RemoveClient(c)
			if g.Empty() {
				delete(h.groups, key)
			}
		}
	}
	c.groups = map[string]struct{}{}
	delete(h.clients, c)
	close(c.Events)
	metrics.ConnectedClients.Dec()
}

func (h *Hub) join(c *Client, key string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	g, ok := h.groups[key]
	if !ok {
		g = NewGroup(key)
		h.groups[key] = g
	}
	if !g.AddClient(c) {
		h.direct(c, &Event{Kind: EventError, Group: key, Error: coreError(ErrCodeAlreadyJoined, "already joined")})
		return
	}
	c.groups[key] = struct{}{}
	h.log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Str("group", key).Msg("client joined group")
	h.direct(c, &Event{Kind: EventJoined, Group: key})
}

func (h *Hub) leave(c *Client, key string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	g, ok := h.groups[key]
	if !ok {
		h.direct(c, &Event{Kind: EventError, Group: key, Error: coreError(ErrCodeGroupNotFound, "group not found")})
		return
	}
	if !g.RemoveClient(c) {
		h.direct(c, &Event{Kind: EventError, Group: key, Error: coreError(ErrCodeNotInGroup, "not in group")})
		return
	}
	delete(c.groups, key)
	if g.Empty() {
		delete(h.groups, key)
	}
	h.direct(c, &Event{Kind: EventLeft, Group: key})
}

func (h *Hub) publish(ev *Event) {
	g, ok := h.groups[ev.Group]
	if !ok {
		return
	}
	if dropped := g.Broadcast(ev); dropped > 0 {
		metrics.BroadcastsDropped.WithLabelValues("slow_consumer").Add(float64(dropped))
		h.log.Debug().Str("group", ev.Group).Int("dropped", dropped).Msg("dropped event for slow consumers")
	}
}

func (h *Hub) direct(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
	}
}

var _ Publisher = (*Hub)(nil)
