package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngwarden/internal/event"
)

type recordingHandler struct {
	calls   *[]string
	name    string
	proceed bool
	err     error
}

func (h recordingHandler) Handle(_ context.Context, _ *api.Update, _ *api.Chat, _ *api.User) (bool, error) {
	*h.calls = append(*h.calls, h.name)
	return h.proceed, h.err
}

func TestUpdateProcessorChainsEnabledHandlers(t *testing.T) {
	var calls []string
	RegisterUpdateHandler("chain-first", recordingHandler{calls: &calls, name: "first", proceed: true})
	RegisterUpdateHandler("chain-stop", recordingHandler{calls: &calls, name: "stop", proceed: false})
	RegisterUpdateHandler("chain-never", recordingHandler{calls: &calls, name: "never", proceed: true})

	up := NewUpdateProcessor([]string{"chain-first", "missing", "chain-stop", "chain-never"})
	now := time.Now()
	up.now = func() time.Time { return now }

	u := &api.Update{Message: &api.Message{Date: int(now.Unix()), Chat: api.Chat{ID: -1}}}
	if err := up.Process(context.Background(), u); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "stop" {
		t.Fatalf("unexpected handler calls %v", calls)
	}
}

func TestUpdateProcessorSkipsOutdatedUpdates(t *testing.T) {
	var calls []string
	RegisterUpdateHandler("outdated-only", recordingHandler{calls: &calls, name: "only", proceed: true})

	up := NewUpdateProcessor([]string{"outdated-only"})
	now := time.Now()
	up.now = func() time.Time { return now }

	old := &api.Update{Message: &api.Message{Date: int(now.Add(-UpdateTimeout - time.Minute).Unix())}}
	if err := up.Process(context.Background(), old); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("outdated update must not reach handlers")
	}
}

func TestUpdateProcessorWrapsHandlerErrors(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	RegisterUpdateHandler("failing", recordingHandler{calls: &calls, name: "failing", err: boom})

	up := NewUpdateProcessor([]string{"failing"})
	err := up.Process(context.Background(), &api.Update{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
	if err := up.Process(context.Background(), nil); err == nil {
		t.Fatalf("nil update must be rejected")
	}
}

type fakePoller struct {
	batches [][]api.Update
	offsets []int
	calls   int
	failAt  int
}

func (p *fakePoller) GetUpdates(config api.UpdateConfig) ([]api.Update, error) {
	p.calls++
	p.offsets = append(p.offsets, config.Offset)
	if p.calls == p.failAt {
		return nil, errors.New("bad gateway")
	}
	if len(p.batches) == 0 {
		return nil, nil
	}
	batch := p.batches[0]
	p.batches = p.batches[1:]
	return batch, nil
}

func TestGetUpdatesChanAdvancesOffset(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	poller := &fakePoller{batches: [][]api.Update{
		{{UpdateID: 10}, {UpdateID: 11}},
		{{UpdateID: 11}, {UpdateID: 12}},
	}}
	ch := GetUpdatesChan(ctx, poller, api.UpdateConfig{}, 0)

	var got []int
	for update := range ch {
		got = append(got, update.UpdateID)
		if len(got) == 3 {
			cancel()
		}
	}
	if len(got) != 3 || got[0] != 10 || got[1] != 11 || got[2] != 12 {
		t.Fatalf("unexpected updates %v", got)
	}
	if poller.offsets[1] != 12 {
		t.Fatalf("offset must follow the last update, got %v", poller.offsets)
	}
}

func TestMessageText(t *testing.T) {
	t.Parallel()

	msg := &api.Message{
		Text:    "hello",
		Caption: " world ",
		ReplyMarkup: &api.InlineKeyboardMarkup{InlineKeyboard: [][]api.InlineKeyboardButton{
			{{Text: "FREE"}, {Text: "MONEY"}},
		}},
	}
	if got := MessageText(msg); got != "hello world FREE MONEY" {
		t.Fatalf("unexpected text %q", got)
	}
	if MessageText(nil) != "" {
		t.Fatalf("nil message has no text")
	}
}

func TestGetUN(t *testing.T) {
	t.Parallel()

	if got := GetUN(&api.User{UserName: "alice", FirstName: "Alice"}); got != "alice" {
		t.Fatalf("unexpected %q", got)
	}
	if got := GetUN(&api.User{FirstName: "Bob", LastName: "Smith"}); got != "Bob Smith" {
		t.Fatalf("unexpected %q", got)
	}
	if GetUN(nil) != "" {
		t.Fatalf("nil user has no name")
	}
}

type fakeLanes struct {
	chats []int64
}

func (l *fakeLanes) Submit(ctx context.Context, chatID int64, task event.Task) error {
	l.chats = append(l.chats, chatID)
	task(ctx)
	return nil
}

func TestServiceSubmitUsesLanes(t *testing.T) {
	t.Parallel()

	lanes := &fakeLanes{}
	s := NewService(nil, lanes, nil, nil)
	ran := false
	if err := s.Submit(context.Background(), -5, func(context.Context) { ran = true }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !ran || len(lanes.chats) != 1 || lanes.chats[0] != -5 {
		t.Fatalf("task must run on the chat lane")
	}
}
