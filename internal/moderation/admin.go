package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/iamwavecut/ngwarden/internal/db"
	ngerrors "github.com/iamwavecut/ngwarden/internal/errors"
)

// Target is the member an admin command is aimed at.
type Target struct {
	ChatID  int64
	UserID  int64
	IsAdmin bool
}

func (e *Engine) sanction(ctx context.Context, actorID int64, target Target, v Verdict) (Outcome, error) {
	if target.IsAdmin {
		return Outcome{}, ngerrors.ErrPrivilegeConflict
	}
	policy := e.policy(ctx, target.ChatID)
	subj := Subject{ChatID: target.ChatID, UserID: target.UserID, ActorID: actorID}
	return e.dispatcher.Dispatch(ctx, subj, v, policy, e.now()), nil
}

// Warn adds a warning, the ledger may escalate it into a ban.
func (e *Engine) Warn(ctx context.Context, actorID int64, target Target, reason string) (Outcome, error) {
	return e.sanction(ctx, actorID, target, Verdict{Kind: VerdictWarn, Reason: ReasonAdmin, Note: reason})
}

// Mute restricts the member for d, zero d mutes until lifted.
func (e *Engine) Mute(ctx context.Context, actorID int64, target Target, d time.Duration, reason string) (Outcome, error) {
	return e.sanction(ctx, actorID, target, Verdict{Kind: VerdictMute, Duration: d, Reason: ReasonAdmin, Note: reason})
}

func (e *Engine) Ban(ctx context.Context, actorID int64, target Target, reason string) (Outcome, error) {
	return e.sanction(ctx, actorID, target, Verdict{Kind: VerdictBan, Reason: ReasonAdmin, Note: reason})
}

func (e *Engine) Kick(ctx context.Context, actorID int64, target Target, reason string) (Outcome, error) {
	return e.sanction(ctx, actorID, target, Verdict{Kind: VerdictKick, Reason: ReasonAdmin, Note: reason})
}

func (e *Engine) ClearWarnings(ctx context.Context, actorID int64, target Target) int {
	previous := e.warnings.Clear(target.ChatID, target.UserID)
	e.dispatcher.Record(ctx, target.ChatID, "rmwarn", actorID, target.UserID, fmt.Sprintf("cleared %d", previous), e.now())
	return previous
}

func (e *Engine) Warnings(chatID, userID int64) int {
	return e.warnings.Count(chatID, userID)
}

func (e *Engine) Unmute(ctx context.Context, actorID int64, target Target) Outcome {
	return e.lift(ctx, actorID, target, ActionUnrestrict, "unmute")
}

func (e *Engine) Unban(ctx context.Context, actorID int64, target Target) Outcome {
	return e.lift(ctx, actorID, target, ActionUnban, "unban")
}

func (e *Engine) lift(ctx context.Context, actorID int64, target Target, kind ActionKind, auditName string) Outcome {
	out := Outcome{Actions: []Action{{ChatID: target.ChatID, UserID: target.UserID, Kind: kind}}}
	out.Warnings = e.dispatcher.Send(ctx, out.Actions...)
	rec := e.dispatcher.Record(ctx, target.ChatID, auditName, actorID, target.UserID, "", e.now())
	out.Audit = &rec
	return out
}

// Blacklist marks the member and bans them. Admins are refused without any state change.
func (e *Engine) Blacklist(ctx context.Context, actorID int64, target Target, reason string) (Outcome, error) {
	if err := e.blacklist.Add(target.ChatID, target.UserID, target.IsAdmin); err != nil {
		return Outcome{}, err
	}
	out := Outcome{
		Verdict: Verdict{Kind: VerdictBan, Reason: ReasonBlacklist, Note: reason},
		Actions: []Action{{ChatID: target.ChatID, UserID: target.UserID, Kind: ActionBan}},
	}
	out.Warnings = e.dispatcher.Send(ctx, out.Actions...)
	rec := e.dispatcher.Record(ctx, target.ChatID, "blacklist", actorID, target.UserID, reason, e.now())
	out.Audit = &rec
	return out, nil
}

// Unblacklist clears the flag and lifts the ban. It reports whether the member was blacklisted.
func (e *Engine) Unblacklist(ctx context.Context, actorID int64, target Target) (Outcome, bool) {
	if !e.blacklist.Remove(target.ChatID, target.UserID) {
		return Outcome{}, false
	}
	out := Outcome{Actions: []Action{{ChatID: target.ChatID, UserID: target.UserID, Kind: ActionUnban}}}
	out.Warnings = e.dispatcher.Send(ctx, out.Actions...)
	rec := e.dispatcher.Record(ctx, target.ChatID, "unblacklist", actorID, target.UserID, "", e.now())
	out.Audit = &rec
	return out, true
}

func (e *Engine) IsBlacklisted(chatID, userID int64) bool {
	return e.blacklist.IsBlocked(chatID, userID)
}

// SetPolicy changes chat settings and audits the change under description.
func (e *Engine) SetPolicy(ctx context.Context, chatID, actorID int64, description string, fn func(*db.Settings) error) (Policy, error) {
	settings, err := e.policies.Update(ctx, chatID, fn)
	if err != nil {
		return Policy{}, err
	}
	e.dispatcher.Record(ctx, chatID, "set_policy", actorID, 0, description, e.now())
	return ResolvePolicy(e.policies.base, settings), nil
}

func (e *Engine) Policy(ctx context.Context, chatID int64) Policy {
	return e.policy(ctx, chatID)
}

func (e *Engine) AuditTail(chatID int64, limit int) []db.AuditRecord {
	return e.store.AuditTail(chatID, limit)
}

// AuditHistory reads the durable archive when there is one and the in-memory tail otherwise.
func (e *Engine) AuditHistory(ctx context.Context, chatID int64, limit int) ([]db.AuditRecord, error) {
	if e.history == nil {
		return e.store.AuditTail(chatID, limit), nil
	}
	records, err := e.history.ListAudit(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit of chat %d: %w", chatID, err)
	}
	return records, nil
}

// Purge forgets all engine state of a chat, persisted snapshot and audit archive included.
func (e *Engine) Purge(ctx context.Context, chatID, actorID int64) error {
	e.store.Purge(chatID)
	if e.snapshots != nil {
		if err := e.snapshots.DeleteSnapshot(ctx, chatID); err != nil {
			return fmt.Errorf("purge chat %d: %w", chatID, err)
		}
	}
	if e.history != nil {
		if err := e.history.DeleteChatAudit(ctx, chatID); err != nil {
			return fmt.Errorf("purge audit of chat %d: %w", chatID, err)
		}
	}
	e.dispatcher.Record(ctx, chatID, "purge", actorID, 0, "", e.now())
	return nil
}
