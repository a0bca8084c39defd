package irecv

// EventType enumerates the subscribable event kinds.
type EventType int

const (
	EventReceived EventType = iota
	EventProgress
	EventConnected
	EventPrecommand
	EventPostcommand
	EventDisconnected

	numEventTypes
)

func (t EventType) String() string {
	switch t {
	case EventReceived:
		return "received"
	case EventProgress:
		return "progress"
	case EventConnected:
		return "connected"
	case EventPrecommand:
		return "precommand"
	case EventPostcommand:
		return "postcommand"
	case EventDisconnected:
		return "disconnected"
	}
	return "UNKNOWN"
}

// Event describes one callback dispatch. Data is borrowed from the
// dispatching operation and must not be retained past the callback.
type Event struct {
	Type     EventType
	Data     []byte
	Size     int
	Progress float64
}

// EventFunc handles one event. A non-zero return vetoes further
// processing where the dispatching operation documents a veto (command
// hooks, the receive drain).
type EventFunc func(c *Client, ev *Event) int

// Subscribe registers fn as the sole handler for the given event type,
// replacing any previous handler.
func (c *Client) Subscribe(t EventType, fn EventFunc) error {
	if t < 0 || t >= numEventTypes {
		return ErrUnknown
	}
	c.callbacks[t] = fn
	return nil
}

// Unsubscribe removes the handler for the given event type.
func (c *Client) Unsubscribe(t EventType) error {
	if t < 0 || t >= numEventTypes {
		return ErrUnknown
	}
	delete(c.callbacks, t)
	return nil
}

// emit dispatches ev to its handler, if any, synchronously on the
// calling goroutine. Returns the handler's veto value, 0 without one.
func (c *Client) emit(ev *Event) int {
	fn, ok := c.callbacks[ev.Type]
	if !ok || fn == nil {
		return 0
	}
	return fn(c, ev)
}
