package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngwarden/internal/config"
	"github.com/iamwavecut/ngwarden/internal/db"
	"github.com/iamwavecut/ngwarden/internal/event"
	"github.com/iamwavecut/ngwarden/internal/moderation"
	"github.com/iamwavecut/ngwarden/internal/state"
)

const testChat int64 = -1001

type recordingGateway struct {
	mu      sync.Mutex
	actions []moderation.Action
}

func (g *recordingGateway) Deliver(_ context.Context, action moderation.Action) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actions = append(g.actions, action)
	return nil
}

func (g *recordingGateway) kinds() []moderation.ActionKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	kinds := make([]moderation.ActionKind, len(g.actions))
	for i, a := range g.actions {
		kinds[i] = a.Kind
	}
	return kinds
}

type memorySettings struct {
	mu       sync.Mutex
	settings map[int64]*db.Settings
}

func (m *memorySettings) GetSettings(_ context.Context, chatID int64) (*db.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

type reply struct {
	chatID    int64
	messageID int
	text      string
}

type answer struct {
	id    string
	text  string
	alert bool
}

// fakeService runs submitted tasks inline against a real engine.
type fakeService struct {
	engine  *moderation.Engine
	gateway *recordingGateway

	mu      sync.Mutex
	admins  map[int64]bool
	replies []reply
	answers []answer
	submits int
}

func newFakeService(t *testing.T, admins ...int64) *fakeService {
	t.Helper()

	base := config.Moderation{
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
	gateway := &recordingGateway{}
	engine, err := moderation.NewEngine(moderation.Deps{
		Store:    state.NewStore(base.AuditTailSize),
		Policies: moderation.NewPolicyBook(&memorySettings{settings: map[int64]*db.Settings{}}, base),
		Gateway:  gateway,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	s := &fakeService{engine: engine, gateway: gateway, admins: map[int64]bool{}}
	for _, id := range admins {
		s.admins[id] = true
	}
	return s
}

func (s *fakeService) Engine() *moderation.Engine { return s.engine }

func (s *fakeService) IsAdmin(_ context.Context, _ int64, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admins[userID], nil
}

func (s *fakeService) Reply(_ context.Context, chatID int64, messageID int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (s *fakeService) AnswerCallback(_ context.Context, id, text string, alert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answer{id: id, text: text, alert: alert})
	return nil
}

func (s *fakeService) Submit(ctx context.Context, _ int64, task event.Task) error {
	s.mu.Lock()
	s.submits++
	s.mu.Unlock()
	task(ctx)
	return nil
}

func (s *fakeService) lastReply(t *testing.T) reply {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		t.Fatalf("expected a reply")
	}
	return s.replies[len(s.replies)-1]
}

func groupChat() *api.Chat {
	return &api.Chat{ID: testChat, Type: "supergroup"}
}

func textMessage(updateID int, from *api.User, text string) *api.Update {
	return &api.Update{
		UpdateID: updateID,
		Message: &api.Message{
			MessageID: updateID,
			From:      from,
			Chat:      *groupChat(),
			Date:      int(time.Now().Unix()),
			Text:      text,
		},
	}
}

// commandUpdate builds "/name args" from the given user replying to target's message when target is set.
func commandUpdate(updateID int, from *api.User, name, args string, target *api.User) *api.Update {
	text := "/" + name
	if args != "" {
		text += " " + args
	}
	u := textMessage(updateID, from, text)
	u.Message.Entities = []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name) + 1}}
	if target != nil {
		u.Message.ReplyToMessage = &api.Message{MessageID: updateID - 1, From: target, Chat: *groupChat()}
	}
	return u
}
