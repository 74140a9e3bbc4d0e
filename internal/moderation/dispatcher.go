package moderation

import (
	"context"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/db"
	ngerrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/observability"
	"github.com/iamwavecut/ngwarden/internal/state"
)

type (
	// Gateway accepts outbound actions. Delivery is its concern, the engine never retries.
	Gateway interface {
		Deliver(ctx context.Context, action Action) error
	}

	// AuditSink receives every audit record for durable history.
	AuditSink interface {
		RecordAudit(ctx context.Context, rec db.AuditRecord) error
	}
)

// Subject identifies who a verdict applies to and who issued it. ActorID 0 is automatic.
type Subject struct {
	ChatID    int64
	UserID    int64
	MessageID int
	ActorID   int64
}

// Outcome describes what a dispatch did. Warnings carry gateway failures.
type Outcome struct {
	Verdict   Verdict
	Actions   []Action
	Audit     *db.AuditRecord
	WarnCount int
	Warnings  []error
}

type Dispatcher struct {
	store    *state.Store
	warnings *WarningLedger
	gateway  Gateway
	sinks    []AuditSink
	newID    func() string
}

func NewDispatcher(store *state.Store, warnings *WarningLedger, gateway Gateway, sinks ...AuditSink) *Dispatcher {
	return &Dispatcher{
		store:    store,
		warnings: warnings,
		gateway:  gateway,
		sinks:    sinks,
		newID:    uuid.New,
	}
}

func (d *Dispatcher) getLogEntry() *log.Entry {
	return log.WithField("object", "Dispatcher")
}

// Dispatch turns one verdict into ordered outbound actions and an audit record.
// Sanctions go first, then message removal, then the notice.
func (d *Dispatcher) Dispatch(ctx context.Context, subj Subject, v Verdict, p Policy, now time.Time) Outcome {
	out := Outcome{Verdict: v}
	if v.Kind == VerdictNone {
		return out
	}

	if v.Kind == VerdictWarn {
		count, escalated := d.warnings.Warn(subj.ChatID, subj.UserID, p.MaxWarnings)
		out.WarnCount = count
		if escalated {
			out.Verdict = Verdict{Kind: VerdictBan, Reason: ReasonWarnings, Note: v.Note}
		}
	}

	out.Actions = planActions(subj, out.Verdict, p, now, out.WarnCount)
	for _, action := range out.Actions {
		if err := d.deliver(ctx, action); err != nil {
			out.Warnings = append(out.Warnings, err)
		}
	}

	rec := d.Record(ctx, subj.ChatID, auditAction(subj.ActorID, out.Verdict), subj.ActorID, subj.UserID, auditReason(out.Verdict), now)
	out.Audit = &rec
	observability.RecordVerdict(out.Verdict.Kind.String(), out.Verdict.Reason)
	return out
}

func planActions(subj Subject, v Verdict, p Policy, now time.Time, warnCount int) []Action {
	var actions []Action
	var until time.Time

	switch v.Kind {
	case VerdictMute:
		if v.Duration > 0 {
			until = now.Add(v.Duration)
		}
		actions = append(actions, Action{ChatID: subj.ChatID, UserID: subj.UserID, Kind: ActionRestrict, Until: until})
	case VerdictBan:
		if v.Duration > 0 {
			until = now.Add(v.Duration)
		}
		actions = append(actions, Action{ChatID: subj.ChatID, UserID: subj.UserID, Kind: ActionBan, Until: until})
	case VerdictKick:
		until = now.Add(p.CaptchaRejectPeriod)
		actions = append(actions, Action{ChatID: subj.ChatID, UserID: subj.UserID, Kind: ActionKick, Until: until})
	}

	if subj.MessageID != 0 {
		actions = append(actions, Action{ChatID: subj.ChatID, UserID: subj.UserID, MessageID: subj.MessageID, Kind: ActionDeleteMessage})
	}

	if text := noticeText(subj.UserID, v, warnCount, p.MaxWarnings, until); text != "" {
		actions = append(actions, Action{ChatID: subj.ChatID, UserID: subj.UserID, Kind: ActionSendNotice, Text: text})
	}
	return actions
}

// Send delivers actions that do not stem from a verdict, such as captcha prompts.
func (d *Dispatcher) Send(ctx context.Context, actions ...Action) []error {
	var warnings []error
	for _, action := range actions {
		if err := d.deliver(ctx, action); err != nil {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

func (d *Dispatcher) deliver(ctx context.Context, action Action) error {
	err := d.gateway.Deliver(ctx, action)
	if err == nil {
		return nil
	}
	if !ngerrors.IsTransientGateway(err) {
		err = ngerrors.NewTransientGatewayError(action.Kind.String(), action.ChatID, action.UserID, err)
	}
	observability.RecordGatewayFailure(action.Kind.String())
	d.getLogEntry().WithFields(log.Fields{
		"action":  action.Kind.String(),
		"chat_id": action.ChatID,
		"user_id": action.UserID,
		"error":   err.Error(),
	}).Warn("action not delivered")
	return err
}

// Record appends an immutable audit record to the chat tail and every sink.
func (d *Dispatcher) Record(ctx context.Context, chatID int64, action string, actorID, targetID int64, reason string, now time.Time) db.AuditRecord {
	rec := db.AuditRecord{
		ID:        d.newID(),
		ChatID:    chatID,
		Timestamp: now.UTC(),
		Action:    action,
		ActorID:   actorID,
		TargetID:  targetID,
		Reason:    reason,
	}
	d.store.AppendAudit(chatID, rec)
	for _, sink := range d.sinks {
		if err := sink.RecordAudit(ctx, rec); err != nil {
			d.getLogEntry().WithField("error", err.Error()).WithField("audit_id", rec.ID).Error("cant persist audit record")
		}
	}
	return rec
}

func auditAction(actorID int64, v Verdict) string {
	if actorID == 0 {
		return "auto_" + v.Kind.String() + "_" + v.Reason
	}
	return v.Kind.String()
}

func auditReason(v Verdict) string {
	if v.Note != "" {
		return v.Note
	}
	return v.Reason
}
