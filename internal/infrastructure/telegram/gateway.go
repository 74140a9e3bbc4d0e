package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/iamwavecut/ngwarden/internal/config"
	ngerrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/infra"
	"github.com/iamwavecut/ngwarden/internal/moderation"
	"github.com/iamwavecut/ngwarden/internal/observability"
)

const drainTimeout = 5 * time.Second

var errOutboxFull = errors.New("outbox is full")

// Gateway queues moderation actions and performs them at a bounded rate.
// Deliver never blocks the caller.
type Gateway struct {
	client  requester
	limiter *rate.Limiter
	outbox  chan moderation.Action

	runMutex  sync.RWMutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func NewGateway(client requester, cfg config.Gateway) *Gateway {
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	size := cfg.OutboxSize
	if size < 1 {
		size = 1
	}
	return &Gateway{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		outbox:  make(chan moderation.Action, size),
	}
}

func (g *Gateway) getLogEntry() *log.Entry {
	return log.WithField("object", "Gateway")
}

func (g *Gateway) Start(ctx context.Context) error {
	g.runMutex.Lock()
	defer g.runMutex.Unlock()
	if g.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g.runCancel = cancel

	g.workersWg.Add(1)
	go func() {
		defer g.workersWg.Done()
		g.work(runCtx)
	}()

	g.started = true
	return nil
}

func (g *Gateway) Stop(ctx context.Context) error {
	g.runMutex.Lock()
	if !g.started {
		g.runMutex.Unlock()
		return nil
	}
	g.started = false
	cancel := g.runCancel
	g.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Deliver enqueues the action. A stopped gateway or a full outbox yields a transient error.
func (g *Gateway) Deliver(ctx context.Context, action moderation.Action) error {
	g.runMutex.RLock()
	defer g.runMutex.RUnlock()
	if !g.started {
		return ngerrors.NewTransientGatewayError(action.Kind.String(), action.ChatID, action.UserID, ngerrors.ErrStopped)
	}
	select {
	case g.outbox <- action:
		return nil
	case <-ctx.Done():
		return ngerrors.NewTransientGatewayError(action.Kind.String(), action.ChatID, action.UserID, ctx.Err())
	default:
		return ngerrors.NewTransientGatewayError(action.Kind.String(), action.ChatID, action.UserID, errOutboxFull)
	}
}

func (g *Gateway) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			g.drain()
			return
		case action := <-g.outbox:
			if err := g.limiter.Wait(ctx); err != nil {
				g.drain(action)
				return
			}
			g.perform(action)
		}
	}
}

// drain performs the held actions and what is still queued, bounded by drainTimeout.
func (g *Gateway) drain(held ...moderation.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	next := func() (moderation.Action, bool) {
		if len(held) > 0 {
			action := held[0]
			held = held[1:]
			return action, true
		}
		select {
		case action := <-g.outbox:
			return action, true
		default:
			return moderation.Action{}, false
		}
	}
	for {
		action, ok := next()
		if !ok {
			return
		}
		if err := g.limiter.Wait(ctx); err != nil {
			g.getLogEntry().WithField("pending", len(g.outbox)+len(held)+1).Warn("dropping undelivered actions")
			return
		}
		g.perform(action)
	}
}

func (g *Gateway) perform(action moderation.Action) {
	entry := g.getLogEntry().WithFields(log.Fields{
		"action":  action.Kind.String(),
		"chat_id": action.ChatID,
		"user_id": action.UserID,
	})
	requests, err := buildRequests(action)
	if err != nil {
		entry.WithField("error", err.Error()).Error("cant build request")
		observability.RecordGatewayFailure(action.Kind.String())
		return
	}
	for _, req := range requests {
		var reqErr error
		if err := infra.SafeCall("gateway-"+req.Method(), func() {
			_, reqErr = g.client.Request(req)
		}); err != nil {
			reqErr = err
		}
		if reqErr != nil {
			entry.WithFields(log.Fields{"method": req.Method(), "error": reqErr.Error()}).Warn("request failed")
			observability.RecordGatewayFailure(action.Kind.String())
			return
		}
	}
	entry.Trace("action performed")
}
