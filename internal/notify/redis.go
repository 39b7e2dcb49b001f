package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// wireEvent is what travels over the Redis channel. An empty UserID means broadcast.
type wireEvent struct {
	UserID string `json:"user_id,omitempty"`
	Event  Event  `json:"event"`
}

// RedisFanout publishes events to a Redis channel so every API replica can deliver
// them to its own connections. Run must be started on each replica; until its
// subscription is live, events are delivered locally as well.
type RedisFanout struct {
	rdb        *redis.Client
	channel    string
	local      Emitter
	logger     *slog.Logger
	subscribed atomic.Bool
	retryMin   time.Duration
	retryMax   time.Duration
}

var _ Emitter = (*RedisFanout)(nil)

func NewRedisFanout(rdb *redis.Client, channel string, local Emitter, logger *slog.Logger) *RedisFanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFanout{
		rdb:      rdb,
		channel:  channel,
		local:    local,
		logger:   logger,
		retryMin: 500 * time.Millisecond,
		retryMax: 30 * time.Second,
	}
}

// WithRetry sets the resubscribe backoff bounds.
func (f *RedisFanout) WithRetry(lo, hi time.Duration) *RedisFanout {
	f.retryMin, f.retryMax = lo, hi
	return f
}

// Subscribed reports whether this replica currently receives the channel.
func (f *RedisFanout) Subscribed() bool { return f.subscribed.Load() }

func (f *RedisFanout) EmitToUser(ctx context.Context, userID string, ev Event) {
	f.publish(ctx, wireEvent{UserID: userID, Event: stamped(ev)})
}

func (f *RedisFanout) Broadcast(ctx context.Context, ev Event) {
	f.publish(ctx, wireEvent{Event: stamped(ev)})
}

func (f *RedisFanout) publish(ctx context.Context, we wireEvent) {
	if !f.subscribed.Load() {
		// our own clients would never see the echo
		f.dispatch(ctx, we)
		if f.rdb == nil {
			return
		}
		f.send(ctx, we)
		return
	}
	if !f.send(ctx, we) {
		f.logger.Warn("fanout publish failed, delivering locally", "channel", f.channel)
		f.dispatch(ctx, we)
	}
}

func (f *RedisFanout) send(ctx context.Context, we wireEvent) bool {
	b, err := json.Marshal(we)
	if err != nil {
		f.logger.Error("marshal fanout event", "event", we.Event.Type, "err", err)
		return true
	}
	if err := f.rdb.Publish(ctx, f.channel, b).Err(); err != nil {
		f.logger.Debug("fanout publish", "channel", f.channel, "err", err)
		return false
	}
	return true
}

// Run relays channel messages into the local emitter until ctx is done, resubscribing
// with backoff whenever Redis is unreachable.
func (f *RedisFanout) Run(ctx context.Context) error {
	wait := f.retryMin
	for {
		live, err := f.subscribe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if live {
			wait = f.retryMin
		}
		f.logger.Warn("fanout subscription down, retrying", "channel", f.channel, "in", wait, "err", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		if wait *= 2; wait > f.retryMax {
			wait = f.retryMax
		}
	}
}

// subscribe holds one subscription; live reports whether it was ever confirmed.
func (f *RedisFanout) subscribe(ctx context.Context) (live bool, err error) {
	sub := f.rdb.Subscribe(ctx, f.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}
	f.subscribed.Store(true)
	defer f.subscribed.Store(false)
	f.logger.Info("fanout subscribed", "channel", f.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-ch:
			if !ok {
				return true, errors.New("subscription channel closed")
			}
			f.Dispatch(ctx, []byte(msg.Payload))
		}
	}
}

// Dispatch delivers one raw channel payload locally.
func (f *RedisFanout) Dispatch(ctx context.Context, payload []byte) {
	var we wireEvent
	if err := json.Unmarshal(payload, &we); err != nil {
		f.logger.Warn("bad fanout payload", "err", err)
		return
	}
	f.dispatch(ctx, we)
}

func (f *RedisFanout) dispatch(ctx context.Context, we wireEvent) {
	if we.UserID == "" {
		f.local.Broadcast(ctx, we.Event)
		return
	}
	f.local.EmitToUser(ctx, we.UserID, we.Event)
}
