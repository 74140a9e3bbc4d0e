package event

import (
	"context"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	ngerrors "github.com/iamwavecut/ngwarden/internal/errors"
)

// Task is a unit of work bound to one chat.
type Task func(ctx context.Context)

// Lanes routes tasks by chat to a fixed set of FIFO workers.
// Tasks of one chat run sequentially, different chats run in parallel.
type Lanes struct {
	count     int
	queueSize int

	mu       sync.RWMutex
	started  bool
	queues   []chan Task
	stopping chan struct{}
	stopOnce *sync.Once
	cancel   context.CancelFunc
	group    *errgroup.Group
}

func NewLanes(count, queueSize int) *Lanes {
	if count < 1 {
		count = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Lanes{count: count, queueSize: queueSize}
}

func (l *Lanes) getLogEntry() *log.Entry {
	return log.WithField("object", "Lanes")
}

func (l *Lanes) Start(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.stopping = make(chan struct{})
	l.stopOnce = &sync.Once{}
	l.queues = make([]chan Task, l.count)
	l.group = &errgroup.Group{}
	for i := range l.queues {
		queue := make(chan Task, l.queueSize)
		l.queues[i] = queue
		lane := strconv.Itoa(i)
		l.group.Go(func() error {
			return l.work(runCtx, lane, queue)
		})
	}
	l.started = true
	return nil
}

// LaneOf returns the lane index serving chatID.
func (l *Lanes) LaneOf(chatID int64) int {
	return int(uint64(chatID) % uint64(l.count))
}

// Submit enqueues task behind earlier tasks of the same chat. It blocks while the lane is full.
func (l *Lanes) Submit(ctx context.Context, chatID int64, task Task) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.started {
		return ngerrors.ErrStopped
	}
	select {
	case l.queues[l.LaneOf(chatID)] <- task:
		return nil
	case <-l.stopping:
		return ngerrors.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks and waits for queued ones to finish.
func (l *Lanes) Stop(ctx context.Context) error {
	l.mu.RLock()
	if !l.started {
		l.mu.RUnlock()
		return nil
	}
	stopping, stopOnce := l.stopping, l.stopOnce
	l.mu.RUnlock()

	stopOnce.Do(func() { close(stopping) })

	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = false
	for _, queue := range l.queues {
		close(queue)
	}
	group, cancel := l.group, l.cancel
	l.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case err := <-done:
		cancel()
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}
