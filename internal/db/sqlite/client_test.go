package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/iamwavecut/ngwarden/internal/db"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()

	client, err := NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	missing, err := client.GetSettings(ctx, -100)
	if err != nil {
		t.Fatalf("get missing settings: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil settings for unknown chat, got %+v", missing)
	}

	settings := db.DefaultSettings(-100)
	settings.FloodThreshold = 7
	settings.CaptchaEnabled = true
	settings.SpamAction = "mute"
	settings.WordFilters.Add("casino")
	if err := client.SetSettings(ctx, settings); err != nil {
		t.Fatalf("set settings: %v", err)
	}

	settings.FloodThreshold = 8
	if err := client.SetSettings(ctx, settings); err != nil {
		t.Fatalf("upsert settings: %v", err)
	}

	got, err := client.GetSettings(ctx, -100)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.FloodThreshold != 8 || !got.CaptchaEnabled || got.SpamAction != "mute" {
		t.Fatalf("unexpected settings: %+v", got)
	}
	if got.MaxWarnings != db.SettingsOverrideInherit {
		t.Fatalf("expected inherited max warnings, got %d", got.MaxWarnings)
	}
	if len(got.WordFilters) != 1 || got.WordFilters[0] != "casino" {
		t.Fatalf("unexpected word filters: %v", got.WordFilters)
	}
}

func TestSnapshotsUpsertListDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	if payload, err := client.LoadSnapshot(ctx, 1); err != nil || payload != nil {
		t.Fatalf("expected empty load, got %q %v", payload, err)
	}
	if err := client.SaveSnapshot(ctx, 2, []byte(`{"chat_id":2}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := client.SaveSnapshot(ctx, 1, []byte(`{"chat_id":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := client.SaveSnapshot(ctx, 1, []byte(`{"chat_id":1,"warnings":{"5":1}}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	payload, err := client.LoadSnapshot(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(payload) != `{"chat_id":1,"warnings":{"5":1}}` {
		t.Fatalf("unexpected payload %s", payload)
	}

	chats, err := client.ListSnapshotChats(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 2 || chats[0] != 1 || chats[1] != 2 {
		t.Fatalf("unexpected chats %v", chats)
	}

	if err := client.DeleteSnapshot(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	chats, err = client.ListSnapshotChats(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(chats) != 1 || chats[0] != 2 {
		t.Fatalf("unexpected chats after delete %v", chats)
	}
}

func TestAuditInsertIsIdempotentAndNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	records := []db.AuditRecord{
		{ID: "a", ChatID: -1, Timestamp: base, Action: "auto_mute_flood", TargetID: 10},
		{ID: "b", ChatID: -1, Timestamp: base.Add(time.Second), Action: "warn", ActorID: 7, TargetID: 11, Reason: "rude"},
		{ID: "c", ChatID: -2, Timestamp: base.Add(2 * time.Second), Action: "ban", ActorID: 7, TargetID: 12},
	}
	if err := client.InsertAudit(ctx, records...); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := client.InsertAudit(ctx, records[:2]...); err != nil {
		t.Fatalf("re-insert: %v", err)
	}

	got, err := client.ListAudit(ctx, -1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("expected newest first, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Reason != "rude" || got[0].ActorID != 7 {
		t.Fatalf("unexpected record %+v", got[0])
	}

	if err := client.DeleteChatAudit(ctx, -1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = client.ListAudit(ctx, -1, 10)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}

func TestLastFlushRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	if at, err := client.LastFlush(ctx); err != nil || !at.IsZero() {
		t.Fatalf("expected zero time before any flush, got %s %v", at, err)
	}
	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := client.SetLastFlush(ctx, first); err != nil {
		t.Fatalf("set: %v", err)
	}
	second := first.Add(90 * time.Second)
	if err := client.SetLastFlush(ctx, second.In(time.FixedZone("UTC+3", 3*3600))); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	at, err := client.LastFlush(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !at.Equal(second) || at.Location() != time.UTC {
		t.Fatalf("expected %s in UTC, got %s", second, at)
	}
}

func TestLastFlushRejectsMalformedMarker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	if err := client.writeMarker(ctx, lastFlushKey, "yesterday"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := client.LastFlush(ctx); err == nil {
		t.Fatalf("expected malformed marker error")
	}
}
