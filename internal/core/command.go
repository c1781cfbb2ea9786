package core

// CommandKind describes what the hub is asked to do.
type CommandKind int

const (
	// CommandRegister attaches a new connection.
	CommandRegister CommandKind = iota
	// CommandUnregister detaches a connection and drops its group memberships.
	CommandUnregister
	// CommandJoin subscribes the client to a group.
	CommandJoin
	// CommandLeave unsubscribes the client from a group.
	CommandLeave
	// CommandPublish delivers an event to every client of a group.
	CommandPublish
)

// Command represents one unit of work for the hub loop.
type Command struct {
	Kind   CommandKind
	Client *Client
	Group  string
	Event  *Event
}
