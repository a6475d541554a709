package model

import "time"

type ContextState string

const ACTIVE ContextState = "active"
const WAITING_MESSAGE ContextState = "waiting_message"
const WAITING_WEBHOOK ContextState = "waiting_webhook"
const WAITING_TIME ContextState = "waiting_time"

// SUSPENDED marks a parent whose child subflow is running. It is neither live nor terminal.
const SUSPENDED ContextState = "suspended"
const COMPLETED ContextState = "completed"
const ERRORED ContextState = "errored"

// IsLive reports whether the context counts towards the one-live-context-per-contact limit.
func (s ContextState) IsLive() bool {
	return s == ACTIVE || s.IsWaiting()
}

func (s ContextState) IsWaiting() bool {
	return s == WAITING_MESSAGE || s == WAITING_WEBHOOK || s == WAITING_TIME
}

func (s ContextState) IsTerminal() bool {
	return s == COMPLETED || s == ERRORED
}

type WaitKind string

const WAIT_NONE WaitKind = "none"
const WAIT_MESSAGE WaitKind = "message"
const WAIT_WEBHOOK WaitKind = "webhook"
const WAIT_TIME WaitKind = "time"

type Wait struct {
	Kind       WaitKind   `json:"kind"`
	Token      string     `json:"token,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	ActionUuid string     `json:"actionUuid,omitempty"`
}

// FlowContext is a contact's durable cursor into one flow execution.
// ActionIndex points at the next action of the current node to run; when it
// equals the number of actions the node is at its router stage.
type FlowContext struct {
	Id             string         `json:"id"`
	OrganizationId int64          `json:"organizationId"`
	ContactId      int64          `json:"contactId"`
	FlowId         int64          `json:"flowId"`
	FlowUuid       string         `json:"flowUuid"`
	FlowStatus     FlowStatus     `json:"flowStatus"`
	State          ContextState   `json:"state"`
	NodeUuid       string         `json:"nodeUuid"`
	ActionIndex    int            `json:"actionIndex"`
	Wait           Wait           `json:"wait"`
	Results        map[string]any `json:"results"`
	LastInput      string         `json:"lastInput,omitempty"`
	ParentId       string         `json:"parentId,omitempty"`
	ErrorReason    string         `json:"errorReason,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

func (fc *FlowContext) IsChild() bool {
	return len(fc.ParentId) != 0
}

// ClearWait drops any suspension bookkeeping.
func (fc *FlowContext) ClearWait() {
	fc.Wait = Wait{Kind: WAIT_NONE}
}
