package core

import (
	"fmt"
	"strconv"
	"strings"
)

const conversationGroupPrefix = "conversation:"

// ConversationGroup returns the broadcast group key for a conversation.
func ConversationGroup(conversationID int64) string {
	return conversationGroupPrefix + strconv.FormatInt(conversationID, 10)
}

// ParseConversationGroup extracts the conversation id from a group key.
func ParseConversationGroup(key string) (int64, error) {
	raw, ok := strings.CutPrefix(key, conversationGroupPrefix)
	if !ok {
		return 0, fmt.Errorf("not a conversation group: %q", key)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Group is the set of clients currently viewing one conversation.
type Group struct {
	Key     string
	clients map[*Client]struct{}
}

// NewGroup constructs a group with no clients.
func NewGroup(key string) *Group {
	return &Group{
		Key:     key,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the group. Returns true if newly added.
func (g *Group) AddClient(c *Client) bool {
	if _, exists := g.clients[c]; exists {
		return false
	}
	g.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the group. Returns true if removed.
func (g *Group) RemoveClient(c *Client) bool {
	if _, exists := g.clients[c]; !exists {
		return false
	}
	delete(g.clients, c)
	return true
}

// Broadcast sends an event to all clients in the group and returns how many were skipped.
func (g *Group) Broadcast(event *Event) (dropped int) {
	for client := range g.clients {
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
			dropped++
		}
	}
	return dropped
}

// Len returns the number of clients in the group.
func (g *Group) Len() int {
	return len(g.clients)
}

// Empty returns true if no clients are in the group.
func (g *Group) Empty() bool {
	return len(g.clients) == 0
}
