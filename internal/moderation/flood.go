package moderation

import (
	"time"

	"github.com/iamwavecut/ngwarden/internal/state"
)

// FloodDetector is a sliding-window message rate limiter.
type FloodDetector struct {
	store *state.Store
}

func NewFloodDetector(store *state.Store) *FloodDetector {
	return &FloodDetector{store: store}
}

// Observe records a message at now and reports whether the user exceeded threshold messages
// within window. A positive report clears the window in the same update.
func (d *FloodDetector) Observe(chatID, userID int64, now time.Time, window time.Duration, threshold int) bool {
	flooding := false
	d.store.Update(chatID, userID, func(r state.UserRecord) state.UserRecord {
		kept := r.FloodWindow[:0]
		for _, ts := range r.FloodWindow {
			if now.Sub(ts) < window {
				kept = append(kept, ts)
			}
		}
		kept = append(kept, now)
		if len(kept) > threshold {
			flooding = true
			kept = nil
		}
		r.FloodWindow = kept
		return r
	})
	return flooding
}

func (d *FloodDetector) Window(chatID, userID int64) []time.Time {
	return d.store.Get(chatID, userID).FloodWindow
}
