package notify

import "time"

type EventType string

const (
	EventConnected    EventType = "connected"
	EventNotification EventType = "notification"
	EventUnreadCount  EventType = "unread_count"
	EventHeartbeat    EventType = "heartbeat"
	EventBroadcast    EventType = "broadcast"
)

// Event is one frame on a push connection.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// stamped fills in the server time when the caller left Timestamp unset.
func stamped(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

type UnreadCount struct {
	Count int `json:"count"`
}

type Announcement struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}
