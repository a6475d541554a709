package action

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/mohitkumar/convoflow/model"
)

type ActionType string

const SEND_MSG ActionType = "send_msg"
const SET_CONTACT_FIELD ActionType = "set_contact_field"
const SET_RUN_RESULT ActionType = "set_run_result"
const WAIT_FOR_RESPONSE ActionType = "wait_for_response"
const WAIT_FOR_TIME ActionType = "wait_for_time"
const CALL_WEBHOOK ActionType = "call_webhook"
const ENTER_FLOW ActionType = "enter_flow"
const EXIT_FLOW ActionType = "exit_flow"

type Action interface {
	GetUuid() string
	GetType() ActionType
	Validate() error
	Execute(ctx context.Context, env *Env) (Outcome, error)
}

// Resumable is implemented by actions that suspend the context. Resume
// consumes the signal that woke the context up.
type Resumable interface {
	Action
	Resume(ctx context.Context, env *Env, signal model.Signal) (Outcome, error)
}

type OutcomeKind int

const CONTINUE OutcomeKind = 1
const SUSPEND OutcomeKind = 2
const ENTER OutcomeKind = 3
const EXIT OutcomeKind = 4

type Outcome struct {
	Kind     OutcomeKind
	State    model.ContextState
	Wait     model.Wait
	FlowUuid string
}

func Continue() Outcome {
	return Outcome{Kind: CONTINUE}
}

func Suspend(state model.ContextState, wait model.Wait) Outcome {
	return Outcome{Kind: SUSPEND, State: state, Wait: wait}
}

type Sender interface {
	Send(ctx context.Context, msg model.OutboundMessage) error
}

type ContactWriter interface {
	SetField(ctx context.Context, orgId int64, contactId int64, field string, value string) error
}

// WebhookCaller issues the call asynchronously; the result comes back later as a signal.
type WebhookCaller interface {
	Call(ctx context.Context, req model.WebhookRequest) error
}

type Scheduler interface {
	Schedule(ctx context.Context, job model.Job) error
}

type Services struct {
	Sender    Sender
	Contacts  ContactWriter
	Webhooks  WebhookCaller
	Scheduler Scheduler
	Clock     func() time.Time
	NewToken  func() string
}

// Env is what an action sees while it runs: the context it mutates, the
// contact it runs for and the collaborators it may call.
type Env struct {
	FlowContext *model.FlowContext
	Contact     *model.Contact
	Services    *Services
}

func (e *Env) Now() time.Time {
	if e.Services != nil && e.Services.Clock != nil {
		return e.Services.Clock()
	}
	return time.Now()
}

// Vars is the variable tree templates and router operands are resolved against.
func (e *Env) Vars() map[string]any {
	fc := e.FlowContext
	results := fc.Results
	if results == nil {
		results = map[string]any{}
	}
	contact := map[string]any{}
	if e.Contact != nil {
		fields := make(map[string]any, len(e.Contact.Fields))
		for k, v := range e.Contact.Fields {
			fields[k] = v
		}
		contact["id"] = e.Contact.Id
		contact["name"] = e.Contact.Name
		contact["phone"] = e.Contact.Phone
		contact["language"] = e.Contact.Language
		contact["fields"] = fields
	}
	return map[string]any{
		"input":   fc.LastInput,
		"results": results,
		"contact": contact,
		"child":   results["child"],
		"flow":    map[string]any{"uuid": fc.FlowUuid, "id": fc.FlowId},
	}
}

func (e *Env) SetResult(name string, value any) {
	if len(name) == 0 {
		return
	}
	if e.FlowContext.Results == nil {
		e.FlowContext.Results = make(map[string]any)
	}
	e.FlowContext.Results[name] = value
}

// RecordSubflowResult exposes a returning subflow's status as @child.status and @input.
func (e *Env) RecordSubflowResult(flowUuid string, status string) {
	e.FlowContext.LastInput = status
	e.SetResult("child", map[string]any{"status": status, "flow_uuid": flowUuid})
}

func (e *Env) NewToken() string {
	return e.Services.NewToken()
}

// ScheduleResume queues signal for delivery to the context at due. The job
// id is the signal token so a token is never scheduled twice.
func (e *Env) ScheduleResume(ctx context.Context, due time.Time, signal model.Signal) error {
	fc := e.FlowContext
	return e.Services.Scheduler.Schedule(ctx, model.Job{
		Id:             signal.Token,
		Type:           model.JOB_RESUME,
		OrganizationId: fc.OrganizationId,
		ContactId:      fc.ContactId,
		ContextId:      fc.Id,
		Signal:         signal,
		DueAt:          due,
	})
}

type baseAction struct {
	uuid    string
	actType ActionType
}

func (ba *baseAction) GetUuid() string {
	return ba.uuid
}

func (ba *baseAction) GetType() ActionType {
	return ba.actType
}

// Decode builds a typed action from its raw document form.
func Decode(raw map[string]any) (Action, error) {
	uuid, _ := raw["uuid"].(string)
	typ, _ := raw["type"].(string)
	if len(uuid) == 0 {
		return nil, fmt.Errorf("action uuid can not be empty")
	}
	base := baseAction{uuid: uuid, actType: ActionType(typ)}
	var act Action
	var params any
	switch base.actType {
	case SEND_MSG:
		a := &sendMsgAction{baseAction: base}
		act, params = a, &a.params
	case SET_CONTACT_FIELD:
		a := &setContactFieldAction{baseAction: base}
		act, params = a, &a.params
	case SET_RUN_RESULT:
		a := &setRunResultAction{baseAction: base}
		act, params = a, &a.params
	case WAIT_FOR_RESPONSE:
		a := &waitForResponseAction{baseAction: base}
		act, params = a, &a.params
	case WAIT_FOR_TIME:
		a := &waitForTimeAction{baseAction: base}
		act, params = a, &a.params
	case CALL_WEBHOOK:
		a := &callWebhookAction{baseAction: base}
		act, params = a, &a.params
	case ENTER_FLOW:
		a := &enterFlowAction{baseAction: base}
		act, params = a, &a.params
	case EXIT_FLOW:
		act = &exitFlowAction{baseAction: base}
	default:
		return nil, fmt.Errorf("action=%s, unsupported action type %q", uuid, typ)
	}
	if params != nil {
		if err := decodeParams(raw, params); err != nil {
			return nil, fmt.Errorf("action=%s, invalid parameters %w", uuid, err)
		}
	}
	if err := act.Validate(); err != nil {
		return nil, err
	}
	return act, nil
}

func decodeParams(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}
