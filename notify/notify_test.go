package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/core/store"
	"github.com/warp/enrollment-engine/notify"
)

// blockingSink holds every delivery until release is closed.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []core.Notification
}

func (s *blockingSink) Notify(_ context.Context, n core.Notification) error {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return nil
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type failingSink struct{}

func (failingSink) Notify(context.Context, core.Notification) error {
	return errors.New("smtp down")
}

func note(id string) core.Notification {
	return core.Notification{ID: id, RecipientID: "o1", Title: "New enrollment", Message: id}
}

func TestDispatcher_DeliversAndDrainsOnStop(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	d := notify.NewDispatcher(notify.StoreSink{Store: s}, 8, log.New(&bytes.Buffer{}, "", 0))
	d.Start()

	for _, id := range []string{"n1", "n2", "n3"} {
		assert.True(t, d.Dispatch(note(id)))
	}
	d.Stop()

	got, err := s.ListNotifications(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	// GIVEN: A queue of 2 and a sink that blocks
	var logs bytes.Buffer
	sink := &blockingSink{release: make(chan struct{})}
	d := notify.NewDispatcher(sink, 2, log.New(&logs, "", 0))

	// WHEN: Dispatching more than fits before the worker runs
	start := time.Now()
	accepted := 0
	for i := 0; i < 5; i++ {
		if d.Dispatch(note("n")) {
			accepted++
		}
	}

	// THEN: Dispatch returned immediately and overflow was dropped and logged
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, accepted)
	assert.Equal(t, int64(3), d.Dropped())
	assert.Contains(t, logs.String(), "queue full")

	d.Start()
	close(sink.release)
	d.Stop()
	assert.Equal(t, 2, sink.count())
}

func TestDispatcher_SinkErrorIsLoggedOnly(t *testing.T) {
	var logs bytes.Buffer
	d := notify.NewDispatcher(failingSink{}, 1, log.New(&logs, "", 0))
	d.Start()

	require.NoError(t, d.Notify(context.Background(), note("n1")))
	d.Stop()

	assert.Contains(t, logs.String(), "smtp down")
}

func TestDispatcher_AfterStopDrops(t *testing.T) {
	d := notify.NewDispatcher(notify.LogSink{Logger: log.New(&bytes.Buffer{}, "", 0)}, 1, log.New(&bytes.Buffer{}, "", 0))
	d.Start()
	d.Stop()
	d.Stop()

	assert.False(t, d.Dispatch(note("late")))
	assert.Equal(t, int64(1), d.Dropped())
}

func TestMulti_ReturnsFirstError(t *testing.T) {
	s := store.NewMemory()
	m := notify.Multi{failingSink{}, notify.StoreSink{Store: s}}

	err := m.Notify(context.Background(), note("n1"))
	assert.Error(t, err)

	got, _ := s.ListNotifications(context.Background(), "o1")
	assert.Len(t, got, 1, "later sinks still run")
}
