package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader hands out msgs once, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	commitCh  chan int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, commitCh: make(chan int64, len(msgs))}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
		r.commitCh <- m.Offset
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerRetriesFailedMessageBeforeCommittingLaterOnes(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Partition: 0, Offset: 5},
		kafka.Message{Partition: 0, Offset: 6},
	)
	c := newConsumer(r, 4, testutil.Logger())
	c.retryMin, c.retryMax = time.Millisecond, 5*time.Millisecond

	var mu sync.Mutex
	attempts := map[int64]int{}
	handler := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[m.Offset]++
		if m.Offset == 5 && attempts[5] < 3 {
			return errors.New("smtp unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, handler) }()

	for i := 0; i < 2; i++ {
		select {
		case <-r.commitCh:
		case <-time.After(2 * time.Second):
			t.Fatal("offsets not committed")
		}
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{5, 6}, r.Committed())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts[5])
	assert.Equal(t, 1, attempts[6])
}

func TestConsumerLeavesMessageUncommittedOnShutdown(t *testing.T) {
	r := newFakeReader(kafka.Message{Partition: 1, Offset: 9})
	c := newConsumer(r, 1, testutil.Logger())
	c.retryMin, c.retryMax = time.Millisecond, time.Millisecond

	called := make(chan struct{}, 1)
	handler := func(context.Context, kafka.Message) error {
		select {
		case called <- struct{}{}:
		default:
		}
		return errors.New("still failing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, handler) }()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Empty(t, r.Committed())
}
