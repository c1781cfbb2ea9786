package core

const clientEventBuffer = 16

// Client is a connected viewer as seen by the core layer.
type Client struct {
	ID     string // connection id
	UserID string
	Name   string
	Events chan *Event
	groups map[string]struct{}
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id, userID, name string) *Client {
	if name == "" {
		name = userID
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Name:   name,
		Events: make(chan *Event, clientEventBuffer),
		groups: make(map[string]struct{}),
	}
}
