package moderation

import (
	ngerrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/state"
)

type BlacklistGate struct {
	store *state.Store
}

func NewBlacklistGate(store *state.Store) *BlacklistGate {
	return &BlacklistGate{store: store}
}

func (g *BlacklistGate) IsBlocked(chatID, userID int64) bool {
	return g.store.Get(chatID, userID).Blacklisted
}

// Add refuses chat admins without touching state.
func (g *BlacklistGate) Add(chatID, userID int64, targetIsAdmin bool) error {
	if targetIsAdmin {
		return ngerrors.ErrPrivilegeConflict
	}
	g.store.Update(chatID, userID, func(r state.UserRecord) state.UserRecord {
		r.Blacklisted = true
		return r
	})
	return nil
}

// Remove reports whether the user was blacklisted.
func (g *BlacklistGate) Remove(chatID, userID int64) bool {
	_, changed := g.store.UpdateIfPresent(chatID, userID, func(r state.UserRecord) (state.UserRecord, bool) {
		if !r.Blacklisted {
			return r, false
		}
		r.Blacklisted = false
		return r, true
	})
	return changed
}
