package notify

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-contrib/sse"
)

var ErrConnClosed = errors.New("push connection closed")

// SSEConn writes events as `data:<json>\n\n` frames on a streaming response.
// Headers go out with the first event, so a stream refused at registration can still
// answer with a normal error response.
type SSEConn struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	closed  bool
}

// NewSSEConn fails if w cannot flush.
func NewSSEConn(w http.ResponseWriter) (*SSEConn, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}
	return &SSEConn{w: w, flusher: f}, nil
}

func (c *SSEConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if !c.started {
		h := c.w.Header()
		h.Set("Content-Type", sse.ContentType)
		h.Set("Cache-Control", "no-cache, no-transform")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.w.WriteHeader(http.StatusOK)
		c.started = true
	}
	if err := sse.Encode(c.w, sse.Event{Data: ev}); err != nil {
		c.closed = true
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *SSEConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
