package moderation

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iamwavecut/ngwarden/internal/db"
	ngerrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/observability"
	"github.com/iamwavecut/ngwarden/internal/state"
)

const defaultDedupeSize = 4096

type (
	snapshotDeleter interface {
		DeleteSnapshot(ctx context.Context, chatID int64) error
	}

	// AuditHistory is the durable audit archive, it outlives the in-memory tail.
	AuditHistory interface {
		ListAudit(ctx context.Context, chatID int64, limit int) ([]db.AuditRecord, error)
		DeleteChatAudit(ctx context.Context, chatID int64) error
	}
)

type Deps struct {
	Store      *state.Store
	Policies   *PolicyBook
	Gateway    Gateway
	Snapshots  snapshotDeleter
	History    AuditHistory
	Sinks      []AuditSink
	DedupeSize int
}

// Engine decides on inbound events. Calls for one chat are expected to be sequential.
type Engine struct {
	store      *state.Store
	policies   *PolicyBook
	snapshots  snapshotDeleter
	history    AuditHistory
	flood      *FloodDetector
	spam       *SpamScorer
	warnings   *WarningLedger
	captcha    *CaptchaManager
	blacklist  *BlacklistGate
	dispatcher *Dispatcher
	seen       *lru.Cache[string, struct{}]
	now        func() time.Time
}

func NewEngine(deps Deps) (*Engine, error) {
	if deps.Store == nil || deps.Policies == nil || deps.Gateway == nil {
		return nil, fmt.Errorf("%w: store, policies and gateway are required", ngerrors.ErrInvalidInput)
	}
	size := deps.DedupeSize
	if size <= 0 {
		size = defaultDedupeSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	warnings := NewWarningLedger(deps.Store)
	return &Engine{
		store:      deps.Store,
		policies:   deps.Policies,
		snapshots:  deps.Snapshots,
		history:    deps.History,
		flood:      NewFloodDetector(deps.Store),
		spam:       NewSpamScorer(deps.Store),
		warnings:   warnings,
		captcha:    NewCaptchaManager(deps.Store),
		blacklist:  NewBlacklistGate(deps.Store),
		dispatcher: NewDispatcher(deps.Store, warnings, deps.Gateway, deps.Sinks...),
		seen:       seen,
		now:        time.Now,
	}, nil
}

func (e *Engine) getLogEntry() *log.Entry {
	return log.WithField("object", "Engine")
}

// Handle processes one inbound event. Re-delivered events with a known ID are ignored.
func (e *Engine) Handle(ctx context.Context, ev Event) (Outcome, error) {
	if ev.ChatID == 0 || ev.UserID == 0 {
		return Outcome{}, fmt.Errorf("%w: event without chat or user", ngerrors.ErrInvalidInput)
	}
	started := time.Now()
	defer observability.ObserveEvent(ev.Kind.String(), started)

	ctx, span := observability.Tracer().Start(ctx, "moderation.Handle", trace.WithAttributes(
		attribute.Int64("chat_id", ev.ChatID),
		attribute.Int64("user_id", ev.UserID),
		attribute.String("kind", ev.Kind.String()),
	))
	defer span.End()

	if ev.ID != "" {
		if dup, _ := e.seen.ContainsOrAdd(ev.ID, struct{}{}); dup {
			observability.RecordDuplicateEvent()
			span.SetAttributes(attribute.Bool("duplicate", true))
			return Outcome{}, nil
		}
	}

	out, err := e.process(ctx, ev)
	if err != nil {
		// failed events stay eligible for redelivery
		if ev.ID != "" {
			e.seen.Remove(ev.ID)
		}
		return out, err
	}
	span.SetAttributes(attribute.String("verdict", out.Verdict.Kind.String()))
	return out, nil
}

func (e *Engine) process(ctx context.Context, ev Event) (Outcome, error) {
	now := ev.Timestamp
	if now.IsZero() {
		now = e.now()
	}
	policy := e.policy(ctx, ev.ChatID)

	switch ev.Kind {
	case EventJoin:
		return e.handleJoin(ctx, ev, policy, now)
	case EventLeave:
		if e.captcha.Cancel(ev.ChatID, ev.UserID) {
			observability.RecordCaptchaOutcome("cancelled")
		}
		return Outcome{}, nil
	}

	verdict := e.decide(ev, policy, now)
	return e.dispatcher.Dispatch(ctx, Subject{ChatID: ev.ChatID, UserID: ev.UserID, MessageID: ev.MessageID}, verdict, policy, now), nil
}

// decide returns the first matching verdict.
func (e *Engine) decide(ev Event, p Policy, now time.Time) Verdict {
	if ev.IsAdmin {
		e.noteBlacklistedAdmin(ev)
		return Verdict{}
	}
	if e.blacklist.IsBlocked(ev.ChatID, ev.UserID) {
		return Verdict{Kind: VerdictBan, Reason: ReasonBlacklist}
	}

	switch e.captcha.State(ev.ChatID, ev.UserID, now) {
	case ChallengePending:
		return Verdict{Kind: VerdictDelete, Reason: ReasonCaptcha}
	case ChallengeExpired:
		if e.captcha.Cancel(ev.ChatID, ev.UserID) {
			observability.RecordCaptchaOutcome("expired")
			return Verdict{Kind: VerdictKick, Reason: ReasonCaptcha}
		}
	}

	if ev.Kind == EventForward && p.ForwardProtection {
		return Verdict{Kind: VerdictDelete, Reason: ReasonForward}
	}
	if p.Antiflood && e.flood.Observe(ev.ChatID, ev.UserID, now, p.FloodWindow, p.FloodThreshold) {
		return Verdict{Kind: VerdictMute, Duration: p.FloodMuteDuration, Reason: ReasonFlood}
	}
	if _, ok := MatchWordFilter(ev.Text, p.WordFilters); ok {
		return Verdict{Kind: VerdictDelete, Reason: ReasonFilter}
	}
	if p.Antispam {
		if delta := e.spam.Score(ev.Text); delta > 0 {
			if total := e.spam.Accumulate(ev.ChatID, ev.UserID, delta, now, p.SpamDecay); total >= p.SpamThreshold {
				e.spam.Reset(ev.ChatID, ev.UserID)
				return spamVerdict(p)
			}
		}
	}
	return Verdict{}
}

// noteBlacklistedAdmin reports a blacklisted member who has since been promoted.
// Admins are never sanctioned, so the entry stays dormant until /unblacklist or a demotion.
func (e *Engine) noteBlacklistedAdmin(ev Event) bool {
	if !e.blacklist.IsBlocked(ev.ChatID, ev.UserID) {
		return false
	}
	e.getLogEntry().
		WithField("chat_id", ev.ChatID).
		WithField("user_id", ev.UserID).
		Warn("blacklisted member is an admin, blacklist not enforced")
	observability.RecordBlacklistedAdmin()
	return true
}

func spamVerdict(p Policy) Verdict {
	switch p.SpamAction {
	case SpamActionMute:
		return Verdict{Kind: VerdictMute, Duration: p.FloodMuteDuration, Reason: ReasonSpam}
	case SpamActionBan:
		return Verdict{Kind: VerdictBan, Reason: ReasonSpam}
	default:
		return Verdict{Kind: VerdictWarn, Reason: ReasonSpam}
	}
}

func (e *Engine) handleJoin(ctx context.Context, ev Event, p Policy, now time.Time) (Outcome, error) {
	if ev.IsAdmin {
		e.noteBlacklistedAdmin(ev)
		return Outcome{}, nil
	}
	if e.blacklist.IsBlocked(ev.ChatID, ev.UserID) {
		return e.dispatcher.Dispatch(ctx, Subject{ChatID: ev.ChatID, UserID: ev.UserID}, Verdict{Kind: VerdictBan, Reason: ReasonBlacklist}, p, now), nil
	}
	if !p.Captcha {
		return Outcome{}, nil
	}

	challenge, created, err := e.captcha.Issue(ev.ChatID, ev.UserID, now, p.CaptchaTimeout)
	if err != nil {
		return Outcome{}, err
	}
	if !created {
		return Outcome{}, nil
	}
	options, err := e.captcha.Options(challenge.Code)
	if err != nil {
		e.captcha.Cancel(ev.ChatID, ev.UserID)
		return Outcome{}, err
	}

	out := Outcome{Actions: []Action{
		{ChatID: ev.ChatID, UserID: ev.UserID, Kind: ActionRestrict},
		{
			ChatID:  ev.ChatID,
			UserID:  ev.UserID,
			Kind:    ActionSendNotice,
			Text:    captchaNotice(ev.UserID, challenge.Code, p.CaptchaTimeout),
			Captcha: &CaptchaPrompt{UserID: ev.UserID, Options: options},
		},
	}}
	out.Warnings = e.dispatcher.Send(ctx, out.Actions...)
	rec := e.dispatcher.Record(ctx, ev.ChatID, "auto_restrict_captcha", 0, ev.UserID, ReasonCaptcha, now)
	out.Audit = &rec
	observability.RecordCaptchaOutcome("issued")
	return out, nil
}

// VerifyCaptcha checks an answer given at answeredAt, zero meaning now. A passed challenge lifts the
// restriction, an expired one removes the member. promptMessageID is the challenge notice to clean up,
// zero when unknown.
func (e *Engine) VerifyCaptcha(ctx context.Context, chatID, userID int64, code string, promptMessageID int, answeredAt time.Time) (VerifyResult, Outcome) {
	now := answeredAt
	if now.IsZero() {
		now = e.now()
	}
	result := e.captcha.Verify(chatID, userID, code, now)
	outcome := result.Reason.String()
	if result.Swept {
		outcome = "ok_after_sweep"
	}
	observability.RecordCaptchaOutcome(outcome)

	var out Outcome
	switch result.Reason {
	case VerifyOK:
		lift, auditName := ActionUnrestrict, "auto_unrestrict_captcha"
		if result.Swept {
			// the sweeper already kicked the member, lifting the ban lets them rejoin
			lift, auditName = ActionUnban, "auto_unban_captcha"
		}
		out.Actions = append(out.Actions, Action{ChatID: chatID, UserID: userID, Kind: lift})
		if promptMessageID != 0 {
			out.Actions = append(out.Actions, Action{ChatID: chatID, UserID: userID, MessageID: promptMessageID, Kind: ActionDeleteMessage})
		}
		out.Warnings = e.dispatcher.Send(ctx, out.Actions...)
		rec := e.dispatcher.Record(ctx, chatID, auditName, 0, userID, ReasonCaptcha, e.now())
		out.Audit = &rec
	case VerifyExpired:
		policy := e.policy(ctx, chatID)
		out = e.dispatcher.Dispatch(ctx, Subject{ChatID: chatID, UserID: userID, MessageID: promptMessageID}, Verdict{Kind: VerdictKick, Reason: ReasonCaptcha}, policy, e.now())
	}
	return result, out
}

// SweepExpired removes members whose challenge ran out.
func (e *Engine) SweepExpired(ctx context.Context) []Outcome {
	now := e.now()
	expired := e.captcha.Sweep(now)
	outcomes := make([]Outcome, 0, len(expired))
	for _, key := range expired {
		observability.RecordCaptchaOutcome("expired")
		policy := e.policy(ctx, key.ChatID)
		outcomes = append(outcomes, e.dispatcher.Dispatch(ctx, Subject{ChatID: key.ChatID, UserID: key.UserID}, Verdict{Kind: VerdictKick, Reason: ReasonCaptcha}, policy, now))
	}
	return outcomes
}

func (e *Engine) policy(ctx context.Context, chatID int64) Policy {
	policy, err := e.policies.Policy(ctx, chatID)
	if err != nil {
		e.getLogEntry().WithField("chat_id", chatID).WithField("error", err.Error()).Warn("using default policy")
	}
	return policy
}
