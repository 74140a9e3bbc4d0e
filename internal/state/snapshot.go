package state

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/iamwavecut/ngwarden/internal/db"
	ngerrors "github.com/iamwavecut/ngwarden/internal/errors"
)

// Snapshot captures the durable part of a chat. Flood windows are left out.
func (s *Store) Snapshot(chatID int64) *db.ChatSnapshot {
	snap := &db.ChatSnapshot{
		ChatID:     chatID,
		TakenAt:    s.now(),
		SpamScores: map[int64]db.SpamScoreSnapshot{},
		Warnings:   map[int64]int{},
		Challenges: map[int64]db.ChallengeSnapshot{},
	}
	p, ok := s.chats.Load(chatID)
	if !ok {
		return snap
	}
	p.users.Range(func(userID int64, rec UserRecord) bool {
		if rec.SpamScore > 0 {
			snap.SpamScores[userID] = db.SpamScoreSnapshot{Score: rec.SpamScore, ScoredAt: rec.SpamScoredAt}
		}
		if rec.Warnings > 0 {
			snap.Warnings[userID] = rec.Warnings
		}
		if rec.Challenge != nil {
			snap.Challenges[userID] = db.ChallengeSnapshot{
				Code:      rec.Challenge.Code,
				IssuedAt:  rec.Challenge.IssuedAt,
				ExpiresAt: rec.Challenge.ExpiresAt,
				Attempts:  rec.Challenge.Attempts,
			}
		}
		if rec.Blacklisted {
			snap.Blacklist = append(snap.Blacklist, userID)
		}
		return true
	})
	slices.Sort(snap.Blacklist)

	p.auditMu.Lock()
	snap.Audit = slices.Clone(p.audit)
	p.auditMu.Unlock()
	return snap
}

// Restore replaces the chat partition with the snapshot contents.
func (s *Store) Restore(snap *db.ChatSnapshot) {
	p := newPartition()
	merge := func(userID int64, fn func(*UserRecord)) {
		rec, _ := p.users.Load(userID)
		fn(&rec)
		p.users.Store(userID, rec)
	}
	for userID, score := range snap.SpamScores {
		merge(userID, func(r *UserRecord) {
			r.SpamScore = score.Score
			r.SpamScoredAt = score.ScoredAt
		})
	}
	for userID, count := range snap.Warnings {
		merge(userID, func(r *UserRecord) { r.Warnings = count })
	}
	for userID, c := range snap.Challenges {
		merge(userID, func(r *UserRecord) {
			r.Challenge = &Challenge{Code: c.Code, IssuedAt: c.IssuedAt, ExpiresAt: c.ExpiresAt, Attempts: c.Attempts}
		})
	}
	for _, userID := range snap.Blacklist {
		merge(userID, func(r *UserRecord) { r.Blacklisted = true })
	}
	audit := snap.Audit
	if over := len(audit) - s.auditCap; over > 0 {
		audit = audit[over:]
	}
	p.audit = make([]db.AuditRecord, len(audit))
	for i, rec := range audit {
		rec.ChatID = snap.ChatID
		p.audit[i] = rec
	}
	s.chats.Store(snap.ChatID, p)
}

func EncodeSnapshot(snap *db.ChatSnapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Wrapf(err, "encode snapshot for chat %d", snap.ChatID)
	}
	return data, nil
}

// DecodeSnapshot rejects documents that do not parse or carry impossible values.
func DecodeSnapshot(chatID int64, data []byte) (*db.ChatSnapshot, error) {
	snap := &db.ChatSnapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("chat %d: %w: %v", chatID, ngerrors.ErrCorruptedSnapshot, err)
	}
	if snap.ChatID != chatID {
		return nil, fmt.Errorf("chat %d: %w: document belongs to chat %d", chatID, ngerrors.ErrCorruptedSnapshot, snap.ChatID)
	}
	for userID, score := range snap.SpamScores {
		if score.Score < 0 {
			return nil, fmt.Errorf("chat %d: %w: negative spam score for user %d", chatID, ngerrors.ErrCorruptedSnapshot, userID)
		}
	}
	for userID, count := range snap.Warnings {
		if count < 0 {
			return nil, fmt.Errorf("chat %d: %w: negative warnings for user %d", chatID, ngerrors.ErrCorruptedSnapshot, userID)
		}
	}
	for userID, c := range snap.Challenges {
		if !isChallengeCode(c.Code) || c.ExpiresAt.Before(c.IssuedAt) {
			return nil, fmt.Errorf("chat %d: %w: malformed challenge for user %d", chatID, ngerrors.ErrCorruptedSnapshot, userID)
		}
	}
	return snap, nil
}

func isChallengeCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
