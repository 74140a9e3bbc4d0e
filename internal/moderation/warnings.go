package moderation

import (
	"github.com/iamwavecut/ngwarden/internal/state"
)

// WarningLedger counts warnings and escalates on reaching the maximum.
type WarningLedger struct {
	store *state.Store
}

func NewWarningLedger(store *state.Store) *WarningLedger {
	return &WarningLedger{store: store}
}

// Warn increments the counter. Reaching maxWarnings resets it and reports escalation,
// count is then the value that triggered it.
func (l *WarningLedger) Warn(chatID, userID int64, maxWarnings int) (count int, escalated bool) {
	if maxWarnings < 1 {
		maxWarnings = 1
	}
	l.store.Update(chatID, userID, func(r state.UserRecord) state.UserRecord {
		r.Warnings++
		count = r.Warnings
		if r.Warnings >= maxWarnings {
			escalated = true
			r.Warnings = 0
		}
		return r
	})
	return count, escalated
}

// Clear resets the counter and returns the previous value.
func (l *WarningLedger) Clear(chatID, userID int64) int {
	previous := 0
	l.store.UpdateIfPresent(chatID, userID, func(r state.UserRecord) (state.UserRecord, bool) {
		previous = r.Warnings
		if previous == 0 {
			return r, false
		}
		r.Warnings = 0
		return r, true
	})
	return previous
}

func (l *WarningLedger) Count(chatID, userID int64) int {
	return l.store.Get(chatID, userID).Warnings
}
