package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "triplecheck/pkg/platform/audit"
	"triplecheck/pkg/platform/audit/store/memory"
)

func verdict(id string) audit.Event {
	return audit.Event{
		ValidationID: id,
		DataType:     "lead",
		Action:       audit.ActionValidationCompleted,
		Decision:     "passed",
		Score:        1,
	}
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), verdict("val_1")))

	events, err := pub.List(context.Background(), "val_1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionValidationCompleted, events[0].Action)
	assert.Equal(t, audit.CategoryVerdict, events[0].Category)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), verdict("val_async")))
	}

	pub.Close()

	events, err := store.ListByValidation(context.Background(), "val_async")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), verdict("val_full"))
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), verdict("val_ts")))
	after := time.Now()

	events, err := pub.List(context.Background(), "val_ts")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	event := verdict("val_custom")
	event.Timestamp = custom
	require.NoError(t, pub.Emit(context.Background(), event))

	events, err := pub.List(context.Background(), "val_custom")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, custom, events[0].Timestamp)
}

func TestPublisher_CancelledContextInAsyncMode(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, pub.Emit(ctx, verdict("val_cancel")), context.Canceled)
}

func TestPublisher_BatchEventsAreOperations(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	require.NoError(t, pub.Emit(context.Background(), audit.Event{BatchID: "b1", Action: audit.ActionBatchCompleted}))

	events, err := store.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}
