package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/convoflow/model"
)

var ErrNotFound = errors.New("not found")
var ErrVersionConflict = errors.New("version conflict")
var ErrEmptyQueue = errors.New("queue is empty")

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

// ContextStore persists flow contexts. Save is compare-and-set on Version:
// a context with Version 0 is created, otherwise the stored version must
// equal fc.Version. On success fc.Version is incremented.
type ContextStore interface {
	SaveContext(ctx context.Context, fc *model.FlowContext) error
	GetContext(ctx context.Context, id string) (*model.FlowContext, error)
	// GetLiveContext returns the contact's active or waiting context, or ErrNotFound.
	GetLiveContext(ctx context.Context, orgId int64, contactId int64) (*model.FlowContext, error)
	ListContexts(ctx context.Context, orgId int64, contactId int64) ([]*model.FlowContext, error)
}

type ContactStore interface {
	GetContact(ctx context.Context, orgId int64, contactId int64) (*model.Contact, error)
	SaveContact(ctx context.Context, c *model.Contact) error
	SetField(ctx context.Context, orgId int64, contactId int64, field string, value string) error
}

type MessageStore interface {
	SaveMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, orgId int64, contactId int64, limit int) ([]*model.Message, error)
}

// FlowStore keeps flow documents keyed by organization, uuid and status.
type FlowStore interface {
	SaveFlow(ctx context.Context, doc *model.FlowDocument) error
	GetFlow(ctx context.Context, orgId int64, uuid string, status model.FlowStatus) (*model.FlowDocument, error)
	ListFlows(ctx context.Context, orgId int64) ([]*model.FlowDocument, error)
}

type CountStore interface {
	IncrementCount(ctx context.Context, count model.FlowCount) error
	GetCounts(ctx context.Context, orgId int64, flowUuid string) ([]model.FlowCount, error)
}

type DelayQueue interface {
	PushJob(ctx context.Context, job model.Job) error
	// PollDue removes and returns jobs due at or before now.
	PollDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error)
}

type OutboundQueue interface {
	PushOutbound(ctx context.Context, msg model.OutboundMessage) error
	PopOutbound(ctx context.Context, batchSize int) ([]*model.OutboundMessage, error)
}

// Storage groups every store a running engine needs.
type Storage struct {
	Contexts ContextStore
	Contacts ContactStore
	Messages MessageStore
	Flows    FlowStore
	Counts   CountStore
	Delay    DelayQueue
	Outbound OutboundQueue
}

func ContactKey(orgId int64, contactId int64) string {
	return fmt.Sprintf("%d:%d", orgId, contactId)
}
