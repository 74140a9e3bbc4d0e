package state

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/iamwavecut/ngwarden/internal/db"
)

const DefaultAuditCap = 50

type (
	Challenge struct {
		Code      string
		IssuedAt  time.Time
		ExpiresAt time.Time
		Attempts  int
	}

	// UserRecord is the engine state of one member in one chat.
	UserRecord struct {
		FloodWindow  []time.Time
		SpamScore    int
		SpamScoredAt time.Time
		Warnings     int
		Challenge    *Challenge
		Blacklisted  bool
	}

	chatPartition struct {
		users   *xsync.MapOf[int64, UserRecord]
		auditMu sync.Mutex
		audit   []db.AuditRecord
		dirty   atomic.Bool
	}

	// Store holds per-(chat, user) records. Writers to different keys never share a lock.
	Store struct {
		chats    *xsync.MapOf[int64, *chatPartition]
		auditCap int
		now      func() time.Time
	}
)

func NewStore(auditCap int) *Store {
	if auditCap <= 0 {
		auditCap = DefaultAuditCap
	}
	return &Store{
		chats:    xsync.NewMapOf[int64, *chatPartition](),
		auditCap: auditCap,
		now:      time.Now,
	}
}

func newPartition() *chatPartition {
	return &chatPartition{users: xsync.NewMapOf[int64, UserRecord]()}
}

// Clone returns a deep copy.
func (r UserRecord) Clone() UserRecord {
	out := r
	if r.FloodWindow != nil {
		out.FloodWindow = slices.Clone(r.FloodWindow)
	}
	if r.Challenge != nil {
		c := *r.Challenge
		out.Challenge = &c
	}
	return out
}

func (r UserRecord) isZero() bool {
	return len(r.FloodWindow) == 0 && r.SpamScore == 0 && r.Warnings == 0 && r.Challenge == nil && !r.Blacklisted
}

// Get returns the committed record or a zero record. It never inserts.
func (s *Store) Get(chatID, userID int64) UserRecord {
	p, ok := s.chats.Load(chatID)
	if !ok {
		return UserRecord{}
	}
	rec, ok := p.users.Load(userID)
	if !ok {
		return UserRecord{}
	}
	return rec.Clone()
}

// Update applies fn to a copy of the record and commits the result atomically for the key.
// Records that end up empty are dropped.
func (s *Store) Update(chatID, userID int64, fn func(UserRecord) UserRecord) UserRecord {
	p, _ := s.chats.LoadOrCompute(chatID, newPartition)
	var committed UserRecord
	p.users.Compute(userID, func(old UserRecord, _ bool) (UserRecord, bool) {
		committed = fn(old.Clone())
		return committed, committed.isZero()
	})
	p.dirty.Store(true)
	return committed.Clone()
}

// UpdateIfPresent is Update that never creates a record. fn reports whether it changed anything.
func (s *Store) UpdateIfPresent(chatID, userID int64, fn func(UserRecord) (UserRecord, bool)) (UserRecord, bool) {
	p, ok := s.chats.Load(chatID)
	if !ok {
		return UserRecord{}, false
	}
	var (
		committed UserRecord
		changed   bool
	)
	p.users.Compute(userID, func(old UserRecord, loaded bool) (UserRecord, bool) {
		if !loaded {
			return old, true
		}
		committed, changed = fn(old.Clone())
		if !changed {
			return old, false
		}
		return committed, committed.isZero()
	})
	if changed {
		p.dirty.Store(true)
	}
	return committed.Clone(), changed
}

// Range visits committed records. Visited records must not be mutated.
func (s *Store) Range(fn func(chatID, userID int64, rec UserRecord) bool) {
	s.chats.Range(func(chatID int64, p *chatPartition) bool {
		proceed := true
		p.users.Range(func(userID int64, rec UserRecord) bool {
			proceed = fn(chatID, userID, rec)
			return proceed
		})
		return proceed
	})
}

func (s *Store) Chats() []int64 {
	chats := make([]int64, 0, s.chats.Size())
	s.chats.Range(func(chatID int64, _ *chatPartition) bool {
		chats = append(chats, chatID)
		return true
	})
	slices.Sort(chats)
	return chats
}

// Purge drops everything known about the chat.
func (s *Store) Purge(chatID int64) bool {
	_, ok := s.chats.LoadAndDelete(chatID)
	return ok
}

// AppendAudit keeps at most auditCap newest records per chat.
func (s *Store) AppendAudit(chatID int64, rec db.AuditRecord) {
	p, _ := s.chats.LoadOrCompute(chatID, newPartition)
	p.auditMu.Lock()
	p.audit = append(p.audit, rec)
	if over := len(p.audit) - s.auditCap; over > 0 {
		p.audit = slices.Delete(p.audit, 0, over)
	}
	p.auditMu.Unlock()
	p.dirty.Store(true)
}

// AuditTail returns up to limit records, newest first.
func (s *Store) AuditTail(chatID int64, limit int) []db.AuditRecord {
	p, ok := s.chats.Load(chatID)
	if !ok {
		return nil
	}
	p.auditMu.Lock()
	defer p.auditMu.Unlock()

	if limit <= 0 || limit > len(p.audit) {
		limit = len(p.audit)
	}
	out := make([]db.AuditRecord, 0, limit)
	for i := len(p.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, p.audit[i])
	}
	return out
}

// ClaimDirty returns chats changed since the previous claim and clears their flag.
func (s *Store) ClaimDirty() []int64 {
	var chats []int64
	s.chats.Range(func(chatID int64, p *chatPartition) bool {
		if p.dirty.CompareAndSwap(true, false) {
			chats = append(chats, chatID)
		}
		return true
	})
	slices.Sort(chats)
	return chats
}

func (s *Store) MarkDirty(chatID int64) {
	if p, ok := s.chats.Load(chatID); ok {
		p.dirty.Store(true)
	}
}
