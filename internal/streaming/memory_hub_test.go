package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return StreamEvent{}
	}
}

func assertEmpty(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", NodeID: "A", EventType: "node_started"}))

	e := receive(t, ch)
	assert.Equal(t, "r1", e.RunID)
	assert.Equal(t, "A", e.NodeID)
	assert.Equal(t, "node_started", e.EventType)
}

func TestFilterByRunID(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{RunID: "r1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r2", EventType: "run_started"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: "run_started"}))

	assert.Equal(t, "r1", receive(t, ch).RunID)
	assertEmpty(t, ch)
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{EventTypes: []string{"node_failed", "run_aborted"}})
	require.NoError(t, err)
	defer cancel()

	for _, et := range []string{"node_started", "node_failed", "node_completed", "run_aborted"} {
		require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: et}))
	}

	assert.Equal(t, "node_failed", receive(t, ch).EventType)
	assert.Equal(t, "run_aborted", receive(t, ch).EventType)
	assertEmpty(t, ch)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewMemoryHub(2)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: "node_started"}))
	}
	assert.Len(t, ch, 2)
	assert.Equal(t, uint64(3), hub.Dropped())
}

func TestCancelClosesChannelAndIsIdempotent(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers())

	_, open := <-ch
	assert.False(t, open)

	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: "run_started"}))
}

func TestCancelledContext(t *testing.T) {
	hub := NewMemoryHub(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, hub.Publish(ctx, StreamEvent{RunID: "r1"}), context.Canceled)
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	hub := NewMemoryHub(8)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err == nil {
				cancel()
			}
		}()
		go func() {
			defer wg.Done()
			_ = hub.Publish(ctx, StreamEvent{RunID: "r", EventType: "node_started"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers())
}
