package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/convoflow/action"
	"github.com/mohitkumar/convoflow/analytics"
	"github.com/mohitkumar/convoflow/cache"
	"github.com/mohitkumar/convoflow/flow"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrUnsupportedNode = errors.New("unsupported node")
var ErrStaleToken = errors.New("stale resumption token")
var ErrStepLimit = errors.New("step limit exceeded")

const DEFAULT_MAX_STEPS = 100

type FlowLookup interface {
	Lookup(ctx context.Context, orgId int64, key cache.Key) (*flow.Flow, error)
}

type Counter interface {
	Record(orgId int64, flowUuid string, uuid string, kind model.FlowCountKind)
}

type Config struct {
	MaxSteps int
	// LegacySubflowSignals treats a user message whose body is a subflow
	// status word as a subflow result.
	LegacySubflowSignals bool
}

// TurnResult describes where a turn left the contact.
type TurnResult struct {
	Context *model.FlowContext
	// NoMatch is set when a router matched nothing and declared no default.
	NoMatch bool
	// Ignored is set when the signal did not apply to the context's state.
	Ignored bool
	Steps   int
}

type Executor struct {
	flows     FlowLookup
	contexts  persistence.ContextStore
	contacts  persistence.ContactStore
	services  *action.Services
	counter   Counter
	collector analytics.FlowDataCollector
	conf      Config
	tracer    trace.Tracer
}

func NewExecutor(flows FlowLookup, contexts persistence.ContextStore, contacts persistence.ContactStore,
	services *action.Services, counter Counter, collector analytics.FlowDataCollector, conf Config) *Executor {
	if conf.MaxSteps <= 0 {
		conf.MaxSteps = DEFAULT_MAX_STEPS
	}
	if services.Clock == nil {
		services.Clock = time.Now
	}
	if services.NewToken == nil {
		services.NewToken = uuid.NewString
	}
	if collector == nil {
		collector = analytics.NewLoggerDataCollector()
	}
	return &Executor{
		flows:     flows,
		contexts:  contexts,
		contacts:  contacts,
		services:  services,
		counter:   counter,
		collector: collector,
		conf:      conf,
		tracer:    otel.Tracer("github.com/mohitkumar/convoflow/engine"),
	}
}

func (e *Executor) now() time.Time {
	return e.services.Clock()
}

// Start completes whatever chain the contact is in and runs fl from its root.
func (e *Executor) Start(ctx context.Context, contact *model.Contact, fl *flow.Flow) (*TurnResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.start", trace.WithAttributes(
		attribute.Int64("organization", contact.OrganizationId),
		attribute.Int64("contact", contact.Id),
		attribute.String("flow", fl.Uuid()),
		attribute.String("status", string(fl.Status())),
	))
	defer span.End()
	if err := e.CompleteActive(ctx, contact.OrganizationId, contact.Id); err != nil {
		return nil, err
	}
	fc := e.newContext(contact, fl, "")
	if err := e.contexts.SaveContext(ctx, fc); err != nil {
		return nil, fmt.Errorf("creating flow context %w", err)
	}
	logger.Info("flow started", zap.Int64("contact", contact.Id), zap.String("flow", fl.Uuid()), zap.String("context", fc.Id))
	e.countNode(fc)
	env := &action.Env{FlowContext: fc, Contact: contact, Services: e.services}
	res, err := e.run(ctx, fl, env, model.NoSignal())
	recordSpan(span, res, err)
	return res, err
}

// StartByUuid resolves the flow and starts it.
func (e *Executor) StartByUuid(ctx context.Context, contact *model.Contact, flowUuid string, status model.FlowStatus) (*TurnResult, error) {
	fl, err := e.flows.Lookup(ctx, contact.OrganizationId, cache.ByIdentity(flowUuid, status))
	if err != nil {
		return nil, err
	}
	return e.Start(ctx, contact, fl)
}

// Resume delivers signal to fc. Timer and webhook signals must carry the
// token fc is waiting on; once consumed the token is cleared, so delivering
// the same signal again returns ErrStaleToken without touching the context.
func (e *Executor) Resume(ctx context.Context, contact *model.Contact, fc *model.FlowContext, signal model.Signal) (*TurnResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.resume", trace.WithAttributes(
		attribute.String("context", fc.Id),
		attribute.String("signal", string(signal.Kind)),
	))
	defer span.End()
	signal = e.classify(signal)
	if err := e.checkSignal(fc, signal); err != nil {
		if errors.Is(err, ErrStaleToken) {
			return &TurnResult{Context: fc, Ignored: true}, err
		}
		return &TurnResult{Context: fc, Ignored: true}, nil
	}
	fl, err := e.lookupFlow(ctx, fc)
	if err != nil {
		if !errors.Is(err, cache.ErrFlowNotFound) {
			// the context stays as it is so the signal can be redelivered
			recordSpan(span, nil, err)
			return nil, fmt.Errorf("resuming context %s: %w", fc.Id, err)
		}
		res, ferr := e.fail(ctx, &action.Env{FlowContext: fc, Contact: contact, Services: e.services}, fc.NodeUuid, err)
		recordSpan(span, res, ferr)
		return res, ferr
	}
	env := &action.Env{FlowContext: fc, Contact: contact, Services: e.services}
	pending, err := e.applySignal(ctx, fl, env, signal)
	if err != nil {
		return e.fail(ctx, env, fc.NodeUuid, err)
	}
	res, err := e.run(ctx, fl, env, pending)
	recordSpan(span, res, err)
	return res, err
}

// Deliver loads the context and its contact and resumes it.
func (e *Executor) Deliver(ctx context.Context, orgId int64, contactId int64, contextId string, signal model.Signal) (*TurnResult, error) {
	fc, err := e.contexts.GetContext(ctx, contextId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("context %s: %w", contextId, ErrStaleToken)
		}
		return nil, err
	}
	contact, err := e.loadContact(ctx, orgId, contactId)
	if err != nil {
		return nil, err
	}
	return e.Resume(ctx, contact, fc, signal)
}

// CompleteActive marks the contact's live context and its suspended parents
// completed. Concurrent writers lose to the completion.
func (e *Executor) CompleteActive(ctx context.Context, orgId int64, contactId int64) error {
	live, err := e.contexts.GetLiveContext(ctx, orgId, contactId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		return err
	}
	for fc := live; fc != nil; {
		if err := e.forceComplete(ctx, fc); err != nil {
			return err
		}
		if !fc.IsChild() {
			break
		}
		parent, err := e.contexts.GetContext(ctx, fc.ParentId)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				break
			}
			return err
		}
		fc = parent
	}
	return nil
}

func (e *Executor) forceComplete(ctx context.Context, fc *model.FlowContext) error {
	for attempt := 0; attempt < 3; attempt++ {
		if fc.State.IsTerminal() {
			return nil
		}
		now := e.now()
		fc.State = model.COMPLETED
		fc.CompletedAt = &now
		fc.UpdatedAt = now
		fc.ClearWait()
		err := e.contexts.SaveContext(ctx, fc)
		if err == nil {
			logger.Info("flow context superseded", zap.String("context", fc.Id), zap.String("flow", fc.FlowUuid))
			return nil
		}
		if !errors.Is(err, persistence.ErrVersionConflict) {
			return err
		}
		fresh, err := e.contexts.GetContext(ctx, fc.Id)
		if err != nil {
			return err
		}
		*fc = *fresh
	}
	return fmt.Errorf("completing context %s: %w", fc.Id, persistence.ErrVersionConflict)
}

func (e *Executor) classify(signal model.Signal) model.Signal {
	if !e.conf.LegacySubflowSignals || signal.Kind != model.SIGNAL_USER_MESSAGE {
		return signal
	}
	body := strings.ToLower(strings.TrimSpace(signal.Payload))
	for _, s := range model.LegacySubflowSignals {
		if body == s {
			logger.Warn("treating message body as subflow result", zap.String("body", body))
			return model.SubflowResult(body)
		}
	}
	return signal
}

func (e *Executor) checkSignal(fc *model.FlowContext, signal model.Signal) error {
	switch signal.Kind {
	case model.SIGNAL_USER_MESSAGE:
		if fc.State == model.WAITING_MESSAGE || fc.State == model.ACTIVE {
			return nil
		}
		return fmt.Errorf("context %s is %s", fc.Id, fc.State)
	case model.SIGNAL_TIMER:
		if fc.State.IsWaiting() && fc.State != model.WAITING_WEBHOOK && len(fc.Wait.Token) != 0 && fc.Wait.Token == signal.Token {
			return nil
		}
	case model.SIGNAL_WEBHOOK_RESULT:
		if fc.State == model.WAITING_WEBHOOK && len(fc.Wait.Token) != 0 && fc.Wait.Token == signal.Token {
			return nil
		}
	case model.SIGNAL_SUBFLOW_RESULT:
		if fc.State == model.SUSPENDED || (e.conf.LegacySubflowSignals && fc.State.IsLive()) {
			return nil
		}
	}
	return fmt.Errorf("context %s in state %s, %s signal: %w", fc.Id, fc.State, signal.Kind, ErrStaleToken)
}

// applySignal consumes the resumption signal of a context that is about to
// run again. It returns the signal still pending for the router stage.
func (e *Executor) applySignal(ctx context.Context, fl *flow.Flow, env *action.Env, signal model.Signal) (model.Signal, error) {
	fc := env.FlowContext
	node, ok := fl.Node(fc.NodeUuid)
	if !ok {
		return signal, fmt.Errorf("node %s not in flow %s: %w", fc.NodeUuid, fl.Uuid(), ErrUnsupportedNode)
	}
	waiting := node.ActionIndex(fc.Wait.ActionUuid)
	fc.State = model.ACTIVE
	switch {
	case signal.Kind == model.SIGNAL_SUBFLOW_RESULT:
		// a returning subflow is routed, never fed to the node's actions
		childFlow := ""
		if waiting >= 0 {
			if enter, ok := node.Actions()[waiting].(interface{ FlowUuid() string }); ok {
				childFlow = enter.FlowUuid()
			}
		}
		env.RecordSubflowResult(childFlow, signal.Payload)
		fc.ClearWait()
		if node.HasRouter() {
			fc.ActionIndex = len(node.Actions())
		} else if waiting >= 0 {
			fc.ActionIndex = waiting + 1
		}
		return model.NoSignal(), nil
	case waiting >= 0:
		act, ok := node.Actions()[waiting].(action.Resumable)
		if !ok {
			return signal, fmt.Errorf("action %s can not be resumed", fc.Wait.ActionUuid)
		}
		fc.ClearWait()
		if _, err := act.Resume(ctx, env, signal); err != nil {
			return signal, err
		}
		fc.ActionIndex = waiting + 1
		return model.NoSignal(), nil
	}
	fc.ClearWait()
	if signal.Kind == model.SIGNAL_USER_MESSAGE {
		fc.LastInput = signal.Payload
	}
	return signal, nil
}

// run advances the context until it suspends, completes, fails or a router
// finds no route. Node transitions loop; subflows swap the context being run.
func (e *Executor) run(ctx context.Context, fl *flow.Flow, env *action.Env, pending model.Signal) (*TurnResult, error) {
	res := &TurnResult{}
	for {
		fc := env.FlowContext
		res.Context = fc
		res.Steps++
		if res.Steps > e.conf.MaxSteps {
			return e.fail(ctx, env, fc.NodeUuid, fmt.Errorf("%d steps in one turn: %w", e.conf.MaxSteps, ErrStepLimit))
		}
		node, ok := fl.Node(fc.NodeUuid)
		if !ok {
			return e.fail(ctx, env, fc.NodeUuid, fmt.Errorf("node %s not in flow %s: %w", fc.NodeUuid, fl.Uuid(), ErrUnsupportedNode))
		}
		if node.Kind() == flow.UNSUPPORTED_NODE {
			return e.fail(ctx, env, node.Uuid(), fmt.Errorf("node %s has neither actions nor a router: %w", node.Uuid(), ErrUnsupportedNode))
		}

		var exit *flow.Exit
		actions := node.Actions()
		switch {
		case fc.ActionIndex < len(actions):
			act := actions[fc.ActionIndex]
			out, err := act.Execute(ctx, env)
			if err != nil {
				return e.fail(ctx, env, node.Uuid(), err)
			}
			switch out.Kind {
			case action.CONTINUE:
				fc.ActionIndex++
				if err := e.save(ctx, fc); err != nil {
					return res, err
				}
			case action.SUSPEND:
				fc.State = out.State
				fc.Wait = out.Wait
				if err := e.save(ctx, fc); err != nil {
					return res, err
				}
				return res, nil
			case action.ENTER:
				child, childFlow, err := e.enter(ctx, env, node, act, out.FlowUuid)
				if err != nil {
					return res, err
				}
				if child != nil {
					env.FlowContext = child
					fl = childFlow
					pending = model.NoSignal()
				}
			case action.EXIT:
				next, nextFlow, done, err := e.finish(ctx, env)
				if err != nil {
					return e.fail(ctx, env, node.Uuid(), err)
				}
				if done {
					return res, nil
				}
				env.FlowContext, fl = next, nextFlow
				pending = model.NoSignal()
			}
			continue
		case node.HasRouter():
			r := node.Router()
			if r.Wait() != nil && pending.Kind != model.SIGNAL_USER_MESSAGE && pending.Kind != model.SIGNAL_TIMER {
				return res, e.waitAtRouter(ctx, env, r)
			}
			var category string
			var matched bool
			if pending.Kind == model.SIGNAL_TIMER {
				exit, matched = r.Expire()
				category = model.TIMER_EXPIRED
			} else {
				value, err := util.ResolveString(env.Vars(), r.Operand())
				if err != nil {
					return e.fail(ctx, env, node.Uuid(), fmt.Errorf("evaluating operand %s: %w", r.Operand(), err))
				}
				exit, category, matched = r.Match(value)
			}
			pending = model.NoSignal()
			if !matched {
				logger.Info("no route matched", zap.String("context", fc.Id), zap.String("node", node.Uuid()), zap.String("input", fc.LastInput))
				fc.State = model.ACTIVE
				res.NoMatch = true
				return res, e.save(ctx, fc)
			}
			env.SetResult(r.ResultName(), category)
		default:
			exit = node.FirstExit()
		}

		if exit != nil {
			e.countExit(fc, exit)
		}
		if exit != nil && !exit.IsTerminal() {
			fc.NodeUuid = exit.Destination()
			fc.ActionIndex = 0
			fc.State = model.ACTIVE
			fc.ClearWait()
			if err := e.save(ctx, fc); err != nil {
				return res, err
			}
			e.countNode(fc)
			continue
		}
		next, nextFlow, done, err := e.finish(ctx, env)
		if err != nil {
			return e.fail(ctx, env, fc.NodeUuid, err)
		}
		if done {
			return res, nil
		}
		env.FlowContext, fl = next, nextFlow
		pending = model.NoSignal()
	}
}

func (e *Executor) waitAtRouter(ctx context.Context, env *action.Env, r *flow.Router) error {
	fc := env.FlowContext
	wait := model.Wait{Kind: model.WAIT_MESSAGE, Token: env.NewToken()}
	if timeout := r.Wait().Timeout(); timeout > 0 {
		deadline := e.now().Add(timeout)
		wait.Deadline = &deadline
		err := env.ScheduleResume(ctx, deadline, model.Signal{Kind: model.SIGNAL_TIMER, Token: wait.Token, Payload: model.TIMER_EXPIRED})
		if err != nil {
			return err
		}
	}
	fc.State = model.WAITING_MESSAGE
	fc.Wait = wait
	return e.save(ctx, fc)
}

// enter suspends the parent and creates the child context. When the child
// flow can not be found the parent routes a failure instead and no child is returned.
func (e *Executor) enter(ctx context.Context, env *action.Env, node *flow.Node, act action.Action, flowUuid string) (*model.FlowContext, *flow.Flow, error) {
	fc := env.FlowContext
	childFlow, err := e.flows.Lookup(ctx, fc.OrganizationId, cache.ByIdentity(flowUuid, fc.FlowStatus))
	if err != nil && fc.FlowStatus == model.DRAFT {
		childFlow, err = e.flows.Lookup(ctx, fc.OrganizationId, cache.ByIdentity(flowUuid, model.PUBLISHED))
	}
	if err != nil {
		logger.Warn("subflow not found, routing failure", zap.String("context", fc.Id), zap.String("subflow", flowUuid), zap.Error(err))
		e.collector.RecordStepFailure(fc, node.Uuid(), fmt.Sprintf("subflow %s not found", flowUuid))
		env.RecordSubflowResult(flowUuid, model.SUBFLOW_FAILURE)
		if node.HasRouter() {
			fc.ActionIndex = len(node.Actions())
		} else {
			fc.ActionIndex++
		}
		return nil, nil, e.save(ctx, fc)
	}
	fc.State = model.SUSPENDED
	fc.Wait = model.Wait{Kind: model.WAIT_NONE, ActionUuid: act.GetUuid()}
	if err := e.save(ctx, fc); err != nil {
		return nil, nil, err
	}
	child := e.newContext(env.Contact, childFlow, fc.Id)
	if err := e.contexts.SaveContext(ctx, child); err != nil {
		return nil, nil, err
	}
	logger.Info("subflow entered", zap.String("parent", fc.Id), zap.String("context", child.Id), zap.String("flow", flowUuid))
	e.countNode(child)
	return child, childFlow, nil
}

// finish completes the current context. For a child it resumes the parent
// with a completed signal; done is false when the turn continues in the parent.
func (e *Executor) finish(ctx context.Context, env *action.Env) (*model.FlowContext, *flow.Flow, bool, error) {
	fc := env.FlowContext
	now := e.now()
	fc.State = model.COMPLETED
	fc.CompletedAt = &now
	fc.ClearWait()
	if err := e.save(ctx, fc); err != nil {
		return nil, nil, true, err
	}
	e.collector.RecordStepSuccess(fc, fc.NodeUuid, map[string]any{"state": fc.State})
	logger.Info("flow completed", zap.String("context", fc.Id), zap.String("flow", fc.FlowUuid))
	if !fc.IsChild() {
		return nil, nil, true, nil
	}
	parent, err := e.contexts.GetContext(ctx, fc.ParentId)
	if err != nil {
		logger.Warn("parent context missing", zap.String("context", fc.Id), zap.String("parent", fc.ParentId), zap.Error(err))
		return nil, nil, true, nil
	}
	if parent.State != model.SUSPENDED {
		logger.Warn("parent context no longer waiting on subflow", zap.String("parent", parent.Id), zap.String("state", string(parent.State)))
		return nil, nil, true, nil
	}
	parentFlow, err := e.lookupFlow(ctx, parent)
	if err != nil {
		env.FlowContext = parent
		return nil, nil, true, err
	}
	env.FlowContext = parent
	if _, err := e.applySignal(ctx, parentFlow, env, model.SubflowResult(model.SUBFLOW_COMPLETED)); err != nil {
		return nil, nil, true, err
	}
	if err := e.save(ctx, parent); err != nil {
		return nil, nil, true, err
	}
	return parent, parentFlow, false, nil
}

// fail marks the context and every ancestor errored and reports it.
func (e *Executor) fail(ctx context.Context, env *action.Env, nodeUuid string, cause error) (*TurnResult, error) {
	fc := env.FlowContext
	fc.State = model.ERRORED
	fc.ErrorReason = cause.Error()
	fc.ClearWait()
	if err := e.save(ctx, fc); err != nil {
		logger.Error("could not persist errored context", zap.String("context", fc.Id), zap.Error(err))
	}
	e.collector.RecordStepFailure(fc, nodeUuid, cause.Error())
	for parentId := fc.ParentId; len(parentId) != 0; {
		parent, err := e.contexts.GetContext(ctx, parentId)
		if err != nil || parent.State.IsTerminal() {
			break
		}
		parent.State = model.ERRORED
		parent.ErrorReason = fmt.Sprintf("subflow %s errored", fc.FlowUuid)
		parent.ClearWait()
		if err := e.save(ctx, parent); err != nil {
			logger.Error("could not persist errored parent", zap.String("context", parent.Id), zap.Error(err))
			break
		}
		parentId = parent.ParentId
	}
	return &TurnResult{Context: fc}, cause
}

func (e *Executor) save(ctx context.Context, fc *model.FlowContext) error {
	fc.UpdatedAt = e.now()
	if err := e.contexts.SaveContext(ctx, fc); err != nil {
		return fmt.Errorf("saving context %s: %w", fc.Id, err)
	}
	return nil
}

func (e *Executor) newContext(contact *model.Contact, fl *flow.Flow, parentId string) *model.FlowContext {
	now := e.now()
	return &model.FlowContext{
		Id:             uuid.NewString(),
		OrganizationId: fl.OrganizationId(),
		ContactId:      contact.Id,
		FlowId:         fl.Id(),
		FlowUuid:       fl.Uuid(),
		FlowStatus:     fl.Status(),
		State:          model.ACTIVE,
		NodeUuid:       fl.RootUuid(),
		Wait:           model.Wait{Kind: model.WAIT_NONE},
		Results:        make(map[string]any),
		ParentId:       parentId,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (e *Executor) lookupFlow(ctx context.Context, fc *model.FlowContext) (*flow.Flow, error) {
	return e.flows.Lookup(ctx, fc.OrganizationId, cache.ByIdentity(fc.FlowUuid, fc.FlowStatus))
}

func (e *Executor) loadContact(ctx context.Context, orgId int64, contactId int64) (*model.Contact, error) {
	contact, err := e.contacts.GetContact(ctx, orgId, contactId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return &model.Contact{Id: contactId, OrganizationId: orgId}, nil
		}
		return nil, err
	}
	return contact, nil
}

func (e *Executor) countNode(fc *model.FlowContext) {
	if e.counter != nil {
		e.counter.Record(fc.OrganizationId, fc.FlowUuid, fc.NodeUuid, model.COUNT_NODE)
	}
}

func (e *Executor) countExit(fc *model.FlowContext, exit *flow.Exit) {
	if e.counter != nil {
		e.counter.Record(fc.OrganizationId, fc.FlowUuid, exit.Uuid(), model.COUNT_EXIT)
	}
}

func recordSpan(span trace.Span, res *TurnResult, err error) {
	if res != nil && res.Context != nil {
		span.SetAttributes(attribute.String("state", string(res.Context.State)), attribute.Int("steps", res.Steps))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
