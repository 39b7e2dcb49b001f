package notify

import (
	"context"
	"time"
)

// Registry is the part of Hub a stream needs.
type Registry interface {
	Register(userID string, c Conn) error
	Unregister(userID string, c Conn)
}

// InitialFunc computes the events a new stream gets after `connected`. It runs after the
// connection is registered, so nothing emitted in between is missed.
type InitialFunc func(ctx context.Context) []Event

// Stream owns one push connection until ctx is done: it registers conn, sends the
// connected frame and any initial events, then heartbeats. The connection is always
// unregistered and closed on return.
func Stream(ctx context.Context, reg Registry, userID string, conn Conn, heartbeat time.Duration, initial InitialFunc) error {
	if err := reg.Register(userID, conn); err != nil {
		return err
	}
	defer func() {
		reg.Unregister(userID, conn)
		_ = conn.Close()
	}()

	if err := conn.Send(NewEvent(EventConnected, map[string]string{"user_id": userID})); err != nil {
		return err
	}
	if initial != nil {
		for _, ev := range initial(ctx) {
			if err := conn.Send(ev); err != nil {
				return err
			}
		}
	}

	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	t := time.NewTicker(heartbeat)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := conn.Send(NewEvent(EventHeartbeat, nil)); err != nil {
				return err
			}
		}
	}
}
