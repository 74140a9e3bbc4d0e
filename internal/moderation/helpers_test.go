package moderation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/iamwavecut/ngwarden/internal/config"
	"github.com/iamwavecut/ngwarden/internal/db"
	"github.com/iamwavecut/ngwarden/internal/state"
)

var testBase = config.Moderation{
	FloodThreshold:      5,
	FloodWindow:         5 * time.Second,
	FloodMuteDuration:   5 * time.Minute,
	SpamThreshold:       3,
	SpamDecay:           30 * time.Second,
	SpamAction:          "warn",
	MaxWarnings:         3,
	CaptchaTimeout:      3 * time.Minute,
	CaptchaRejectPeriod: time.Minute,
	AuditTailSize:       50,
}

type recordingGateway struct {
	mu      sync.Mutex
	actions []Action
	fail    map[ActionKind]error
}

func (g *recordingGateway) Deliver(_ context.Context, action Action) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.fail[action.Kind]; ok {
		return err
	}
	g.actions = append(g.actions, action)
	return nil
}

func (g *recordingGateway) kinds() []ActionKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	kinds := make([]ActionKind, len(g.actions))
	for i, a := range g.actions {
		kinds[i] = a.Kind
	}
	return kinds
}

func (g *recordingGateway) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actions = nil
}

type memorySettings struct {
	mu       sync.Mutex
	settings map[int64]*db.Settings
	failGet  error
}

func newMemorySettings(settings ...*db.Settings) *memorySettings {
	m := &memorySettings{settings: map[int64]*db.Settings{}}
	for _, s := range settings {
		m.settings[s.ID] = s
	}
	return m
}

func (m *memorySettings) GetSettings(_ context.Context, chatID int64) (*db.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	s, ok := m.settings[chatID]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (m *memorySettings) SetSettings(_ context.Context, settings *db.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *settings
	m.settings[settings.ID] = &out
	return nil
}

type memoryAuditSink struct {
	mu      sync.Mutex
	records []db.AuditRecord
}

func (s *memoryAuditSink) RecordAudit(_ context.Context, rec db.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryAuditSink) ListAudit(_ context.Context, chatID int64, limit int) ([]db.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.AuditRecord
	for i := len(s.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.records[i].ChatID == chatID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func (s *memoryAuditSink) DeleteChatAudit(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.ChatID != chatID {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	return nil
}

type testRig struct {
	engine   *Engine
	gateway  *recordingGateway
	store    *state.Store
	settings *memorySettings
	sink     *memoryAuditSink
	clock    time.Time
}

func newTestRig(t *testing.T, settings ...*db.Settings) *testRig {
	t.Helper()

	rig := &testRig{
		gateway:  &recordingGateway{},
		store:    state.NewStore(testBase.AuditTailSize),
		settings: newMemorySettings(settings...),
		sink:     &memoryAuditSink{},
		clock:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	engine, err := NewEngine(Deps{
		Store:      rig.store,
		Policies:   NewPolicyBook(rig.settings, testBase),
		Gateway:    rig.gateway,
		Sinks:      []AuditSink{rig.sink},
		DedupeSize: 64,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.now = func() time.Time { return rig.clock }
	ids := 0
	engine.dispatcher.newID = func() string {
		ids++
		return fmt.Sprintf("audit-%d", ids)
	}
	rig.engine = engine
	return rig
}

func sequenceCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

// flakyCodes fails the listed calls (1-based) and otherwise cycles through codes.
func flakyCodes(failCalls []int, codes ...string) func() (string, error) {
	next := sequenceCodes(codes...)
	var mu sync.Mutex
	call := 0
	return func() (string, error) {
		mu.Lock()
		call++
		n := call
		mu.Unlock()
		if slices.Contains(failCalls, n) {
			return "", errors.New("entropy unavailable")
		}
		return next()
	}
}

func settingsWith(chatID int64, fn func(*db.Settings)) *db.Settings {
	s := db.DefaultSettings(chatID)
	fn(s)
	return s
}
