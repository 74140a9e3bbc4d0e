package state

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/db"
)

type flushMarker interface {
	LastFlush(ctx context.Context) (time.Time, error)
	SetLastFlush(ctx context.Context, at time.Time) error
}

// Flusher restores chats on start and writes dirty chats back periodically and on stop.
type Flusher struct {
	store    *Store
	backend  db.SnapshotStore
	marker   flushMarker
	interval time.Duration

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func NewFlusher(store *Store, backend db.SnapshotStore, marker flushMarker, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Flusher{
		store:    store,
		backend:  backend,
		marker:   marker,
		interval: interval,
	}
}

func (f *Flusher) getLogEntry() *log.Entry {
	return log.WithField("object", "Flusher")
}

func (f *Flusher) Start(ctx context.Context) error {
	f.runMutex.Lock()
	defer f.runMutex.Unlock()
	if f.started {
		return nil
	}

	if err := f.RestoreAll(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	f.runCancel = cancel

	f.workersWg.Add(1)
	go func() {
		defer f.workersWg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := f.Flush(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					f.getLogEntry().WithField("error", err.Error()).Error("periodic flush failed")
				}
			}
		}
	}()

	f.started = true
	return nil
}

func (f *Flusher) Stop(ctx context.Context) error {
	f.runMutex.Lock()
	if !f.started {
		f.runMutex.Unlock()
		return nil
	}
	f.started = false
	cancel := f.runCancel
	f.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	return f.Flush(ctx)
}

// RestoreAll loads every persisted chat. A chat whose document cannot be read or
// decoded starts empty; only failing to list the persisted chats is an error.
func (f *Flusher) RestoreAll(ctx context.Context) error {
	chatIDs, err := f.backend.ListSnapshotChats(ctx)
	if err != nil {
		return err
	}
	restored, skipped := 0, 0
	for _, chatID := range chatIDs {
		entry := f.getLogEntry().WithField("chat_id", chatID)
		payload, err := f.backend.LoadSnapshot(ctx, chatID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			entry.WithField("error", err.Error()).Error("cant load snapshot, starting chat with empty state")
			f.store.Purge(chatID)
			skipped++
			continue
		}
		if payload == nil {
			continue
		}
		snap, err := DecodeSnapshot(chatID, payload)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("reinitializing chat with empty state")
			f.store.Purge(chatID)
			skipped++
			continue
		}
		f.store.Restore(snap)
		restored++
	}
	entry := f.getLogEntry().WithField("chats", restored).WithField("skipped", skipped)
	if f.marker != nil {
		if flushedAt, err := f.marker.LastFlush(ctx); err != nil {
			f.getLogEntry().WithField("error", err.Error()).Warn("cant read last flush time")
		} else if !flushedAt.IsZero() {
			entry = entry.WithField("flushed_at", flushedAt.Format(time.RFC3339))
		}
	}
	entry.Info("state restored")
	return nil
}

// Flush persists chats changed since the previous flush. Failed chats stay dirty.
func (f *Flusher) Flush(ctx context.Context) error {
	var flushErr error
	flushed := 0
	for _, chatID := range f.store.ClaimDirty() {
		if err := f.flushChat(ctx, chatID); err != nil {
			f.store.MarkDirty(chatID)
			flushErr = errors.Join(flushErr, err)
			continue
		}
		flushed++
	}
	if flushed > 0 {
		f.getLogEntry().WithField("chats", flushed).Debug("snapshots flushed")
		if f.marker != nil {
			if err := f.marker.SetLastFlush(ctx, time.Now()); err != nil {
				f.getLogEntry().WithField("error", err.Error()).Warn("cant record flush time")
			}
		}
	}
	return flushErr
}

func (f *Flusher) flushChat(ctx context.Context, chatID int64) error {
	snap := f.store.Snapshot(chatID)
	if snap.IsEmpty() {
		return f.backend.DeleteSnapshot(ctx, chatID)
	}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	return f.backend.SaveSnapshot(ctx, chatID, data)
}
