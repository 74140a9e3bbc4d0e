package moderation

import (
	"regexp"
	"time"
	"unicode"

	"github.com/iamwavecut/ngwarden/internal/state"
)

const (
	capsMinLength   = 10
	capsRatio       = 0.7
	emojiMaxAllowed = 5
	repeatRunLength = 5
)

var urlPattern = regexp.MustCompile(`(?i)(?:https?://|www\.|t\.me/)\S+|\b[a-z0-9][a-z0-9-]*\.(?:com|net|org|io|ru|me|ly|gg|xyz|info|biz|top|click|link)\b`)

// ScoreText rates message content. It has no side effects.
func ScoreText(text string) int {
	var (
		length, letters, upper, emoji int
		run                           int
		prev                          rune = -1
		repeated                      bool
	)
	for _, r := range text {
		length++
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if isEmoji(r) {
			emoji++
		}
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run >= repeatRunLength {
			repeated = true
		}
	}

	score := 0
	if length > capsMinLength && letters > 0 && float64(upper)/float64(letters) > capsRatio {
		score += 2
	}
	if emoji > emojiMaxAllowed {
		score++
	}
	if urlPattern.MatchString(text) {
		score++
	}
	if repeated {
		score++
	}
	return score
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x1F000 && r <= 0x1F2FF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	}
	return false
}

// SpamScorer keeps a decaying per-user score.
type SpamScorer struct {
	store *state.Store
}

func NewSpamScorer(store *state.Store) *SpamScorer {
	return &SpamScorer{store: store}
}

func (s *SpamScorer) Score(text string) int {
	return ScoreText(text)
}

// Accumulate adds delta to the user score. A score idle for longer than decay restarts from zero.
func (s *SpamScorer) Accumulate(chatID, userID int64, delta int, now time.Time, decay time.Duration) int {
	rec := s.store.Update(chatID, userID, func(r state.UserRecord) state.UserRecord {
		if !r.SpamScoredAt.IsZero() && now.Sub(r.SpamScoredAt) > decay {
			r.SpamScore = 0
			r.SpamScoredAt = time.Time{}
		}
		if delta > 0 {
			r.SpamScore += delta
			r.SpamScoredAt = now
		}
		return r
	})
	return rec.SpamScore
}

func (s *SpamScorer) Reset(chatID, userID int64) {
	s.store.UpdateIfPresent(chatID, userID, func(r state.UserRecord) (state.UserRecord, bool) {
		if r.SpamScore == 0 && r.SpamScoredAt.IsZero() {
			return r, false
		}
		r.SpamScore = 0
		r.SpamScoredAt = time.Time{}
		return r, true
	})
}
