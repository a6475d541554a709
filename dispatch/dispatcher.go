package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mohitkumar/convoflow/action"
	"github.com/mohitkumar/convoflow/cache"
	"github.com/mohitkumar/convoflow/engine"
	"github.com/mohitkumar/convoflow/flow"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/orgconfig"
	"github.com/mohitkumar/convoflow/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const NEW_CONTACT_KEYWORD = "newcontact"

type Decision string

const (
	DECISION_SKIPPED   Decision = "skipped"
	DECISION_DRAFT     Decision = "draft"
	DECISION_OPTIN     Decision = "optin"
	DECISION_CONTINUE  Decision = "continue"
	DECISION_SCHEDULED Decision = "scheduled"
	DECISION_KEYWORD   Decision = "keyword"
	DECISION_BETA      Decision = "beta"
	DECISION_RESUME    Decision = "resume"
	DECISION_PERIODIC  Decision = "periodic"
	DECISION_NONE      Decision = "none"
)

type Result struct {
	Decision    Decision           `json:"decision"`
	FlowUuid    string             `json:"flowUuid,omitempty"`
	ScheduledAt *time.Time         `json:"scheduledAt,omitempty"`
	Turn        *engine.TurnResult `json:"-"`
}

type Executor interface {
	Start(ctx context.Context, contact *model.Contact, fl *flow.Flow) (*engine.TurnResult, error)
	Resume(ctx context.Context, contact *model.Contact, fc *model.FlowContext, signal model.Signal) (*engine.TurnResult, error)
	CompleteActive(ctx context.Context, orgId int64, contactId int64) error
}

type Flows interface {
	Lookup(ctx context.Context, orgId int64, key cache.Key) (*flow.Flow, error)
	Keywords(ctx context.Context, orgId int64) (cache.KeywordIndex, error)
}

type Periodic interface {
	Run(ctx context.Context, org *orgconfig.Organization, contact *model.Contact) (*engine.TurnResult, bool, error)
}

type Config struct {
	// LegacyEchoMatch also treats a body containing the opt-in prompt text as an echo.
	LegacyEchoMatch bool
}

type Dispatcher struct {
	exec      Executor
	flows     Flows
	storage   *persistence.Storage
	scheduler action.Scheduler
	orgs      *orgconfig.Registry
	periodic  Periodic
	conf      Config
	clock     func() time.Time
	validate  *validator.Validate
	tracer    trace.Tracer
}

func NewDispatcher(exec Executor, flows Flows, storage *persistence.Storage, scheduler action.Scheduler,
	orgs *orgconfig.Registry, periodic Periodic, conf Config, clock func() time.Time) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		exec:      exec,
		flows:     flows,
		storage:   storage,
		scheduler: scheduler,
		orgs:      orgs,
		periodic:  periodic,
		conf:      conf,
		clock:     clock,
		validate:  validator.New(),
		tracer:    otel.Tracer("github.com/mohitkumar/convoflow/dispatch"),
	}
}

// Dispatch decides what an inbound message does to its contact. The first
// matching rule wins: echo skip, draft override, opt-in override,
// continuation of a keyword-ignoring flow, keyword trigger, then resuming
// the live context or a periodic flow.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *model.Message) (*Result, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.message", trace.WithAttributes(
		attribute.Int64("organization", msg.OrganizationId),
		attribute.Int64("contact", msg.ContactId),
	))
	defer span.End()
	res, err := d.dispatch(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.String("decision", string(res.Decision)), attribute.String("flow", res.FlowUuid))
	logger.Debug("message dispatched", zap.Int64("contact", msg.ContactId), zap.String("decision", string(res.Decision)), zap.String("flow", res.FlowUuid))
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *model.Message) (*Result, error) {
	if err := d.validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = d.clock()
	}
	org := d.orgs.Get(msg.OrganizationId)
	contact, err := d.contact(ctx, msg)
	if err != nil {
		return nil, err
	}
	if len(msg.Id) == 0 {
		msg.Id = uuid.NewString()
	}
	if err := d.storage.Messages.SaveMessage(ctx, msg); err != nil {
		logger.Warn("could not store inbound message", zap.Int64("contact", contact.Id), zap.Error(err))
	}

	if d.isEcho(org, msg) {
		return &Result{Decision: DECISION_SKIPPED}, nil
	}

	keywords, err := d.flows.Keywords(ctx, org.Id)
	if err != nil {
		return nil, err
	}
	live, err := d.storage.Contexts.GetLiveContext(ctx, org.Id, contact.Id)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	body := strings.TrimSpace(msg.Body)
	signal := model.UserMessage(msg.Body, msg.Media)

	if rest, ok := cutPrefixFold(body, org.DraftMarker); ok {
		if fl, found := keywords.Get(rest, model.DRAFT); found {
			return d.start(ctx, DECISION_DRAFT, contact, fl)
		}
	}

	if contact.IsOptedOut() && len(org.OptinFlowUuid) != 0 {
		inOptin, err := d.inFlow(ctx, live, org.OptinFlowUuid)
		if err != nil {
			return nil, err
		}
		if !inOptin {
			fl, err := d.flows.Lookup(ctx, org.Id, cache.ByIdentity(org.OptinFlowUuid, model.PUBLISHED))
			if err != nil {
				return nil, err
			}
			return d.start(ctx, DECISION_OPTIN, contact, fl)
		}
	}

	if live != nil {
		fl, err := d.flows.Lookup(ctx, org.Id, cache.ByIdentity(live.FlowUuid, live.FlowStatus))
		if err != nil && !errors.Is(err, cache.ErrFlowNotFound) {
			return nil, err
		}
		if fl != nil && fl.IgnoreKeywords() {
			return d.resume(ctx, DECISION_CONTINUE, contact, live, signal)
		}
	}

	if msg.NewContact {
		if fl, found := keywords.Get(NEW_CONTACT_KEYWORD, model.PUBLISHED); found {
			if org.NewContactDelay <= 0 {
				return d.start(ctx, DECISION_KEYWORD, contact, fl)
			}
			return d.schedule(ctx, contact, fl, msg.ReceivedAt.Add(org.NewContactDelay))
		}
	}
	if fl, found := keywords.Get(body, model.PUBLISHED); found {
		return d.start(ctx, DECISION_KEYWORD, contact, fl)
	}
	if contact.Tester || org.IsBetaTester(contact.Phone) {
		if fl, found := keywords.Get(body, model.DRAFT); found {
			return d.start(ctx, DECISION_BETA, contact, fl)
		}
	}

	if live != nil {
		return d.resume(ctx, DECISION_RESUME, contact, live, signal)
	}
	if d.periodic != nil {
		turn, started, err := d.periodic.Run(ctx, org, contact)
		if err != nil {
			return nil, err
		}
		if started {
			return &Result{Decision: DECISION_PERIODIC, FlowUuid: turn.Context.FlowUuid, Turn: turn}, nil
		}
	}
	return &Result{Decision: DECISION_NONE}, nil
}

// contact loads the message's contact, creating it on first contact.
func (d *Dispatcher) contact(ctx context.Context, msg *model.Message) (*model.Contact, error) {
	contact, err := d.storage.Contacts.GetContact(ctx, msg.OrganizationId, msg.ContactId)
	if err == nil {
		if msg.Contact != nil && !sameTime(contact.OptoutTime, msg.Contact.OptoutTime) {
			contact.OptoutTime = msg.Contact.OptoutTime
			contact.UpdatedAt = msg.ReceivedAt
			if err := d.storage.Contacts.SaveContact(ctx, contact); err != nil {
				return nil, err
			}
			logger.Info("contact opt-out changed", zap.Int64("contact", contact.Id), zap.Bool("optedOut", contact.IsOptedOut()))
		}
		return contact, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	contact = &model.Contact{}
	if msg.Contact != nil {
		*contact = *msg.Contact
	}
	contact.Id = msg.ContactId
	contact.OrganizationId = msg.OrganizationId
	contact.CreatedAt = msg.ReceivedAt
	contact.UpdatedAt = msg.ReceivedAt
	if err := d.storage.Contacts.SaveContact(ctx, contact); err != nil {
		return nil, err
	}
	msg.NewContact = true
	logger.Info("new contact", zap.Int64("organization", contact.OrganizationId), zap.Int64("contact", contact.Id))
	return contact, nil
}

// sameTime compares optional timestamps, nil equal only to nil.
func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (d *Dispatcher) isEcho(org *orgconfig.Organization, msg *model.Message) bool {
	if msg.FirstSession {
		return false
	}
	if msg.Echo {
		return true
	}
	if d.conf.LegacyEchoMatch && len(org.OptinPrompt) != 0 &&
		strings.Contains(strings.ToLower(msg.Body), strings.ToLower(org.OptinPrompt)) {
		logger.Warn("skipping message matching the opt-in prompt", zap.Int64("contact", msg.ContactId))
		return true
	}
	return false
}

// inFlow reports whether fc or one of its parents runs flowUuid.
func (d *Dispatcher) inFlow(ctx context.Context, fc *model.FlowContext, flowUuid string) (bool, error) {
	for fc != nil {
		if fc.FlowUuid == flowUuid {
			return true, nil
		}
		if !fc.IsChild() {
			return false, nil
		}
		parent, err := d.storage.Contexts.GetContext(ctx, fc.ParentId)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		fc = parent
	}
	return false, nil
}

func (d *Dispatcher) start(ctx context.Context, decision Decision, contact *model.Contact, fl *flow.Flow) (*Result, error) {
	turn, err := d.exec.Start(ctx, contact, fl)
	return &Result{Decision: decision, FlowUuid: fl.Uuid(), Turn: turn}, err
}

func (d *Dispatcher) resume(ctx context.Context, decision Decision, contact *model.Contact, fc *model.FlowContext, signal model.Signal) (*Result, error) {
	turn, err := d.exec.Resume(ctx, contact, fc, signal)
	return &Result{Decision: decision, FlowUuid: fc.FlowUuid, Turn: turn}, err
}

func (d *Dispatcher) schedule(ctx context.Context, contact *model.Contact, fl *flow.Flow, due time.Time) (*Result, error) {
	err := d.scheduler.Schedule(ctx, model.Job{
		Id:             uuid.NewString(),
		Type:           model.JOB_START_FLOW,
		OrganizationId: contact.OrganizationId,
		ContactId:      contact.Id,
		FlowUuid:       fl.Uuid(),
		FlowStatus:     fl.Status(),
		DueAt:          due,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("new contact flow scheduled", zap.Int64("contact", contact.Id), zap.String("flow", fl.Uuid()), zap.Time("due", due))
	return &Result{Decision: DECISION_SCHEDULED, FlowUuid: fl.Uuid(), ScheduledAt: &due}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(prefix) == 0 || len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}
