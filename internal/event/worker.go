package event

import (
	"context"

	"github.com/iamwavecut/ngwarden/internal/infra"
	"github.com/iamwavecut/ngwarden/internal/observability"
)

// work drains one lane until it is closed. A panicking task is logged and skipped.
func (l *Lanes) work(ctx context.Context, lane string, queue <-chan Task) error {
	entry := l.getLogEntry().WithField("lane", lane)
	entry.Trace("lane started")
	for task := range queue {
		observability.SetLaneDepth(lane, len(queue))
		if err := infra.SafeCall("lane-"+lane, func() { task(ctx) }); err != nil {
			entry.WithField("error", err.Error()).Error("task failed")
		}
	}
	entry.Trace("lane drained")
	return nil
}
