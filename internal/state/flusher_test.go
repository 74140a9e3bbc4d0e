package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memorySnapshots struct {
	mu       sync.Mutex
	docs     map[int64][]byte
	failFor  int64
	failLoad int64
	flushed  time.Time
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{docs: map[int64][]byte{}}
}

func (m *memorySnapshots) SaveSnapshot(_ context.Context, chatID int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if chatID == m.failFor {
		return errors.New("disk full")
	}
	m.docs[chatID] = data
	return nil
}

func (m *memorySnapshots) LoadSnapshot(_ context.Context, chatID int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if chatID == m.failLoad {
		return nil, errors.New("read timeout")
	}
	return m.docs[chatID], nil
}

func (m *memorySnapshots) ListSnapshotChats(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memorySnapshots) DeleteSnapshot(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, chatID)
	return nil
}

func (m *memorySnapshots) LastFlush(_ context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushed, nil
}

func (m *memorySnapshots) SetLastFlush(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed = at
	return nil
}

func TestFlusherPersistsOnStopAndRestoresOnStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newMemorySnapshots()

	first := NewStore(0)
	flusher := NewFlusher(first, backend, backend, time.Hour)
	if err := flusher.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	first.Update(-1, 5, func(r UserRecord) UserRecord { r.Warnings = 2; return r })
	if err := flusher.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := backend.docs[-1]; !ok {
		t.Fatalf("expected snapshot written on stop")
	}
	if backend.flushed.IsZero() {
		t.Fatalf("expected flush time recorded")
	}

	second := NewStore(0)
	restarted := NewFlusher(second, backend, nil, time.Hour)
	if err := restarted.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	t.Cleanup(func() { _ = restarted.Stop(context.Background()) })
	if got := second.Get(-1, 5).Warnings; got != 2 {
		t.Fatalf("expected restored warnings, got %d", got)
	}
}

func TestFlusherSkipsCorruptedChat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newMemorySnapshots()
	backend.docs[-1] = []byte("{broken")
	backend.docs[-2] = []byte(`{"chat_id":-2,"warnings":{"9":1}}`)

	store := NewStore(0)
	if err := NewFlusher(store, backend, nil, time.Hour).RestoreAll(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if store.Get(-2, 9).Warnings != 1 {
		t.Fatalf("healthy chat must be restored")
	}
	for _, chatID := range store.Chats() {
		if chatID == -1 {
			t.Fatalf("corrupted chat must start empty")
		}
	}
}

func TestFlusherStartsWhenOneChatFailsToLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newMemorySnapshots()
	backend.docs[-1] = []byte(`{"chat_id":-1,"warnings":{"3":2}}`)
	backend.docs[-2] = []byte(`{"chat_id":-2,"warnings":{"9":1}}`)
	backend.failLoad = -1

	store := NewStore(0)
	f := NewFlusher(store, backend, backend, time.Hour)
	if err := f.Start(ctx); err != nil {
		t.Fatalf("start must survive a single unreadable chat: %v", err)
	}
	t.Cleanup(func() { _ = f.Stop(context.Background()) })

	if store.Get(-2, 9).Warnings != 1 {
		t.Fatalf("readable chat must be restored")
	}
	if store.Get(-1, 3).Warnings != 0 {
		t.Fatalf("unreadable chat must start empty")
	}
	if _, ok := backend.docs[-1]; !ok {
		t.Fatalf("unreadable chat document must not be deleted")
	}
}

func TestFlusherFailsWhenChatsCannotBeListed(t *testing.T) {
	t.Parallel()

	store := NewStore(0)
	f := NewFlusher(store, unlistableSnapshots{newMemorySnapshots()}, nil, time.Hour)
	if err := f.Start(context.Background()); err == nil {
		t.Fatalf("expected list failure to abort start")
	}
}

type unlistableSnapshots struct {
	*memorySnapshots
}

func (unlistableSnapshots) ListSnapshotChats(context.Context) ([]int64, error) {
	return nil, errors.New("connection refused")
}

func TestFlushRecordsLastFlushTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newMemorySnapshots()
	store := NewStore(0)
	store.Update(-1, 1, func(r UserRecord) UserRecord { r.Warnings = 1; return r })

	before := time.Now()
	if err := NewFlusher(store, backend, backend, time.Hour).Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if at, _ := backend.LastFlush(ctx); at.Before(before) {
		t.Fatalf("expected flush time recorded, got %s", at)
	}
}

func TestFlushKeepsFailedChatsDirty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newMemorySnapshots()
	backend.failFor = -1

	store := NewStore(0)
	store.Update(-1, 1, func(r UserRecord) UserRecord { r.Warnings = 1; return r })
	store.Update(-2, 1, func(r UserRecord) UserRecord { r.Warnings = 1; return r })

	f := NewFlusher(store, backend, nil, time.Hour)
	if err := f.Flush(ctx); err == nil {
		t.Fatalf("expected flush error")
	}
	if _, ok := backend.docs[-2]; !ok {
		t.Fatalf("healthy chat must still be flushed")
	}
	if dirty := store.ClaimDirty(); len(dirty) != 1 || dirty[0] != -1 {
		t.Fatalf("expected failed chat to stay dirty, got %v", dirty)
	}
}

func TestFlushDeletesEmptiedChat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newMemorySnapshots()
	backend.docs[-1] = []byte(`{"chat_id":-1,"warnings":{"1":1}}`)

	store := NewStore(0)
	f := NewFlusher(store, backend, nil, time.Hour)
	if err := f.RestoreAll(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	store.Update(-1, 1, func(r UserRecord) UserRecord { r.Warnings = 0; return r })
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, ok := backend.docs[-1]; ok {
		t.Fatalf("expected empty chat snapshot removed")
	}
}
