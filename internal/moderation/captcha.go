package moderation

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/iamwavecut/ngwarden/internal/state"
)

type ChallengeState int

const (
	ChallengeNone ChallengeState = iota
	ChallengePending
	ChallengeExpired
)

type VerifyReason int

const (
	VerifyOK VerifyReason = iota
	VerifyNotPending
	VerifyExpired
	VerifyWrongCode
)

func (r VerifyReason) String() string {
	switch r {
	case VerifyOK:
		return "ok"
	case VerifyNotPending:
		return "not_pending"
	case VerifyExpired:
		return "expired"
	case VerifyWrongCode:
		return "wrong_code"
	default:
		return fmt.Sprintf("verify(%d)", int(r))
	}
}

type VerifyResult struct {
	OK       bool
	Reason   VerifyReason
	Attempts int
	// Swept is set when the answer came in time but the challenge had already been swept,
	// so the member was removed and has to be let back in.
	Swept bool
}

type Key struct {
	ChatID int64
	UserID int64
}

const (
	captchaOptionCount = 4
	// sweptRetention bounds how long a swept challenge can still be answered
	// with an answer stamped before its expiry.
	sweptRetention = time.Minute
)

// CaptchaManager drives NONE -> PENDING -> VERIFIED | EXPIRED per member.
type CaptchaManager struct {
	store   *state.Store
	swept   *xsync.MapOf[Key, state.Challenge]
	newCode func() (string, error)
}

func NewCaptchaManager(store *state.Store) *CaptchaManager {
	return &CaptchaManager{
		store:   store,
		swept:   xsync.NewMapOf[Key, state.Challenge](),
		newCode: randomCode,
	}
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// Issue starts a challenge. While one is pending it is returned unchanged with created=false.
func (m *CaptchaManager) Issue(chatID, userID int64, now time.Time, timeout time.Duration) (state.Challenge, bool, error) {
	code, err := m.newCode()
	if err != nil {
		return state.Challenge{}, false, fmt.Errorf("generate captcha code: %w", err)
	}
	var (
		issued  state.Challenge
		created bool
	)
	m.store.Update(chatID, userID, func(r state.UserRecord) state.UserRecord {
		if r.Challenge != nil && !now.After(r.Challenge.ExpiresAt) {
			issued = *r.Challenge
			return r
		}
		r.Challenge = &state.Challenge{
			Code:      code,
			IssuedAt:  now,
			ExpiresAt: now.Add(timeout),
		}
		issued = *r.Challenge
		created = true
		return r
	})
	if created {
		m.swept.Delete(Key{ChatID: chatID, UserID: userID})
	}
	return issued, created, nil
}

// Verify checks code as of now, the moment the answer was given. Expiry wins over a
// correct code, but an answer given at or before expiry passes even if a sweep got there first.
func (m *CaptchaManager) Verify(chatID, userID int64, code string, now time.Time) VerifyResult {
	result := VerifyResult{Reason: VerifyNotPending}
	m.store.UpdateIfPresent(chatID, userID, func(r state.UserRecord) (state.UserRecord, bool) {
		if r.Challenge == nil {
			return r, false
		}
		if now.After(r.Challenge.ExpiresAt) {
			result = VerifyResult{Reason: VerifyExpired, Attempts: r.Challenge.Attempts}
			r.Challenge = nil
			return r, true
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(r.Challenge.Code)) != 1 {
			r.Challenge.Attempts++
			result = VerifyResult{Reason: VerifyWrongCode, Attempts: r.Challenge.Attempts}
			return r, true
		}
		result = VerifyResult{OK: true, Reason: VerifyOK, Attempts: r.Challenge.Attempts}
		r.Challenge = nil
		return r, true
	})
	if result.Reason == VerifyNotPending {
		return m.verifySwept(Key{ChatID: chatID, UserID: userID}, code, now)
	}
	return result
}

// verifySwept accepts a correct in-time answer for a challenge the sweeper already removed.
// A swept challenge is stored before it leaves the record, so a verify that misses one finds the other.
func (m *CaptchaManager) verifySwept(key Key, code string, now time.Time) VerifyResult {
	result := VerifyResult{Reason: VerifyNotPending}
	m.swept.Compute(key, func(c state.Challenge, loaded bool) (state.Challenge, bool) {
		if !loaded {
			return c, true
		}
		if now.After(c.ExpiresAt) || subtle.ConstantTimeCompare([]byte(code), []byte(c.Code)) != 1 {
			return c, false
		}
		result = VerifyResult{OK: true, Reason: VerifyOK, Attempts: c.Attempts, Swept: true}
		return c, true
	})
	return result
}

// Sweep removes challenges expired as of now and returns their keys.
// Expiry is re-checked under the key lock so a concurrent successful verify is never undone.
func (m *CaptchaManager) Sweep(now time.Time) []Key {
	m.swept.Range(func(key Key, c state.Challenge) bool {
		if now.After(c.ExpiresAt.Add(sweptRetention)) {
			m.swept.Delete(key)
		}
		return true
	})

	var candidates []Key
	m.store.Range(func(chatID, userID int64, rec state.UserRecord) bool {
		if rec.Challenge != nil && now.After(rec.Challenge.ExpiresAt) {
			candidates = append(candidates, Key{ChatID: chatID, UserID: userID})
		}
		return true
	})

	expired := make([]Key, 0, len(candidates))
	for _, key := range candidates {
		_, removed := m.store.UpdateIfPresent(key.ChatID, key.UserID, func(r state.UserRecord) (state.UserRecord, bool) {
			if r.Challenge == nil || !now.After(r.Challenge.ExpiresAt) {
				return r, false
			}
			m.swept.Store(key, *r.Challenge)
			r.Challenge = nil
			return r, true
		})
		if removed {
			expired = append(expired, key)
		}
	}
	return expired
}

// Cancel drops a pending challenge, used when the member leaves.
func (m *CaptchaManager) Cancel(chatID, userID int64) bool {
	_, removed := m.store.UpdateIfPresent(chatID, userID, func(r state.UserRecord) (state.UserRecord, bool) {
		if r.Challenge == nil {
			return r, false
		}
		r.Challenge = nil
		return r, true
	})
	return removed
}

func (m *CaptchaManager) State(chatID, userID int64, now time.Time) ChallengeState {
	c := m.store.Get(chatID, userID).Challenge
	switch {
	case c == nil:
		return ChallengeNone
	case now.After(c.ExpiresAt):
		return ChallengeExpired
	default:
		return ChallengePending
	}
}

// Options returns the code mixed with distinct decoys in random order.
func (m *CaptchaManager) Options(code string) ([]string, error) {
	options := []string{code}
	seen := map[string]struct{}{code: {}}
	for len(options) < captchaOptionCount {
		decoy, err := m.newCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[decoy]; dup {
			continue
		}
		seen[decoy] = struct{}{}
		options = append(options, decoy)
	}
	for i := len(options) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, err
		}
		options[i], options[j.Int64()] = options[j.Int64()], options[i]
	}
	return options, nil
}
