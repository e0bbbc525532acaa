package audit

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/entity"
)

func newTestRecorder(t *testing.T, store *Store, queueSize int) *Recorder {
	t.Helper()
	cfg := config.Config{Audit: config.Audit{
		QueueSize:    queueSize,
		Writers:      1,
		WriteTimeout: time.Second,
	}}
	return NewRecorder(cfg, store, zap.NewNop())
}

func TestRecorder_PersistsEntries(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t, store, 16)
	rec.Start()

	caller := Caller{UserID: "u1", Username: "priya", Role: "admin", IP: "10.0.0.1"}
	rec.Create(ResourceOrder, "1", map[string]any{"orderId": 1}, caller)
	rec.StatusChange(ResourceOrder, "1", entity.OrderStatusPending, entity.OrderStatusDelivered, caller)
	rec.Delete(ResourceOrder, "1", map[string]any{"orderId": 1}, caller)

	require.NoError(t, rec.Stop(context.Background()))

	page, err := store.Search(context.Background(), Query{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	for _, e := range page.Entries {
		assert.Equal(t, "u1", e.UserID)
		assert.Equal(t, ResourceOrder, e.Resource)
		assert.True(t, e.Success)
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t, store, 1)

	caller := Caller{UserID: "u1"}
	// No writers are running, so only one entry fits; the rest must be
	// dropped without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			rec.Create(ResourceLab, "1", nil, caller)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	rec.Start()
	require.NoError(t, rec.Stop(context.Background()))

	page, err := store.Search(context.Background(), Query{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 1)
}

func TestRecorder_IgnoresEntriesAfterStop(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t, store, 16)
	rec.Start()
	require.NoError(t, rec.Stop(context.Background()))

	// Must not panic on the closed queue.
	rec.Create(ResourceOrder, "9", nil, Caller{})
	require.NoError(t, rec.Stop(context.Background()))

	page, err := store.Search(context.Background(), Query{Limit: 1000})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
}

func TestRecorder_EnqueueRacingStop(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t, store, 8)
	rec.Start()

	// Hammer the queue from several goroutines while Stop closes it;
	// entries may land or be dropped, but nothing may panic.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				rec.Create(ResourceOrder, strconv.Itoa(g*50+i), nil, Caller{UserID: "u1"})
			}
		}(g)
	}

	require.NoError(t, rec.Stop(context.Background()))
	wg.Wait()
	require.NoError(t, rec.Stop(context.Background()))
}

func TestRecorder_ErrorEntryShape(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t, store, 16)
	rec.Start()

	rec.Error("create", ResourceDispatch, "finish meters must be greater than zero", Caller{UserID: "u2"})
	require.NoError(t, rec.Stop(context.Background()))

	page, err := store.Search(context.Background(), Query{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	entry := page.Entries[0]
	assert.Equal(t, entity.AuditActionError, entry.Action)
	assert.False(t, entry.Success)
	assert.Equal(t, entity.AuditSeverityError, entry.Severity)
	assert.Equal(t, "create", entry.Details["attempted_action"])
}
