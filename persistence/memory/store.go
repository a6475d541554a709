package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/util"
)

var _ persistence.ContextStore = new(Store)
var _ persistence.ContactStore = new(Store)
var _ persistence.MessageStore = new(Store)
var _ persistence.FlowStore = new(Store)
var _ persistence.CountStore = new(Store)
var _ persistence.DelayQueue = new(Store)
var _ persistence.OutboundQueue = new(Store)

// Store keeps everything in process memory. Values are stored encoded so
// callers never share mutable state with the store.
type Store struct {
	mu        sync.Mutex
	contexts  map[string][]byte
	live      map[string]string
	byContact map[string][]string
	contacts  map[string][]byte
	messages  map[string][]*model.Message
	flows     map[string]*model.FlowDocument
	counts    map[string]*model.FlowCount
	jobs      []model.Job
	outbound  []model.OutboundMessage
	ctxEncDec *util.JsonEncDec[model.FlowContext]
	cEncDec   *util.JsonEncDec[model.Contact]
}

func NewStore() *Store {
	return &Store{
		contexts:  make(map[string][]byte),
		live:      make(map[string]string),
		byContact: make(map[string][]string),
		contacts:  make(map[string][]byte),
		messages:  make(map[string][]*model.Message),
		flows:     make(map[string]*model.FlowDocument),
		counts:    make(map[string]*model.FlowCount),
		ctxEncDec: util.NewJsonEncoderDecoder[model.FlowContext](),
		cEncDec:   util.NewJsonEncoderDecoder[model.Contact](),
	}
}

func (s *Store) Storage() *persistence.Storage {
	return &persistence.Storage{
		Contexts: s,
		Contacts: s,
		Messages: s,
		Flows:    s,
		Counts:   s,
		Delay:    s,
		Outbound: s,
	}
}

func (s *Store) SaveContext(ctx context.Context, fc *model.FlowContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.contexts[fc.Id]
	if fc.Version == 0 && exists {
		return persistence.ErrVersionConflict
	}
	if fc.Version != 0 {
		if !exists {
			return persistence.ErrNotFound
		}
		stored, err := s.ctxEncDec.Decode(current)
		if err != nil {
			return err
		}
		if stored.Version != fc.Version {
			return persistence.ErrVersionConflict
		}
	}
	key := persistence.ContactKey(fc.OrganizationId, fc.ContactId)
	if liveId, held := s.live[key]; held && fc.Version == 0 && fc.State.IsLive() && liveId != fc.Id {
		return persistence.ErrVersionConflict
	}
	next := *fc
	next.Version++
	data, err := s.ctxEncDec.Encode(next)
	if err != nil {
		return err
	}
	s.contexts[fc.Id] = data
	if !exists {
		s.byContact[key] = append(s.byContact[key], fc.Id)
	}
	if next.State.IsLive() {
		s.live[key] = fc.Id
	} else if s.live[key] == fc.Id {
		delete(s.live, key)
	}
	fc.Version = next.Version
	return nil
}

func (s *Store) GetContext(ctx context.Context, id string) (*model.FlowContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.contexts[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return s.ctxEncDec.Decode(data)
}

func (s *Store) GetLiveContext(ctx context.Context, orgId int64, contactId int64) (*model.FlowContext, error) {
	s.mu.Lock()
	id, ok := s.live[persistence.ContactKey(orgId, contactId)]
	s.mu.Unlock()
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return s.GetContext(ctx, id)
}

func (s *Store) ListContexts(ctx context.Context, orgId int64, contactId int64) ([]*model.FlowContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FlowContext
	for _, id := range s.byContact[persistence.ContactKey(orgId, contactId)] {
		fc, err := s.ctxEncDec.Decode(s.contexts[id])
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, nil
}

func (s *Store) GetContact(ctx context.Context, orgId int64, contactId int64) (*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.contacts[persistence.ContactKey(orgId, contactId)]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return s.cEncDec.Decode(data)
}

func (s *Store) SaveContact(ctx context.Context, c *model.Contact) error {
	data, err := s.cEncDec.Encode(*c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[persistence.ContactKey(c.OrganizationId, c.Id)] = data
	return nil
}

func (s *Store) SetField(ctx context.Context, orgId int64, contactId int64, field string, value string) error {
	c, err := s.GetContact(ctx, orgId, contactId)
	if err != nil {
		return err
	}
	if c.Fields == nil {
		c.Fields = make(map[string]string)
	}
	c.Fields[field] = value
	c.UpdatedAt = time.Now()
	return s.SaveContact(ctx, c)
}

func (s *Store) SaveMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := persistence.ContactKey(msg.OrganizationId, msg.ContactId)
	m := *msg
	s.messages[key] = append(s.messages[key], &m)
	return nil
}

// ListMessages returns the newest messages first.
func (s *Store) ListMessages(ctx context.Context, orgId int64, contactId int64, limit int) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[persistence.ContactKey(orgId, contactId)]
	var out []*model.Message
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		m := *all[i]
		out = append(out, &m)
	}
	return out, nil
}

func flowKey(orgId int64, uuid string, status model.FlowStatus) string {
	return persistence.ContactKey(orgId, 0) + ":" + uuid + ":" + string(status)
}

func (s *Store) SaveFlow(ctx context.Context, doc *model.FlowDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *doc
	s.flows[flowKey(doc.OrganizationId, doc.Uuid, doc.Status)] = &d
	return nil
}

func (s *Store) GetFlow(ctx context.Context, orgId int64, uuid string, status model.FlowStatus) (*model.FlowDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.flows[flowKey(orgId, uuid, status)]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	d := *doc
	return &d, nil
}

func (s *Store) ListFlows(ctx context.Context, orgId int64) ([]*model.FlowDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FlowDocument
	for _, doc := range s.flows {
		if doc.OrganizationId == orgId {
			d := *doc
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Id == out[j].Id {
			return out[i].Status < out[j].Status
		}
		return out[i].Id < out[j].Id
	})
	return out, nil
}

func (s *Store) IncrementCount(ctx context.Context, count model.FlowCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := flowKey(count.OrganizationId, count.FlowUuid, "") + count.Uuid + ":" + string(count.Kind)
	existing, ok := s.counts[key]
	if !ok {
		c := count
		c.Count = 0
		existing = &c
		s.counts[key] = existing
	}
	existing.Count += count.Count
	return nil
}

func (s *Store) GetCounts(ctx context.Context, orgId int64, flowUuid string) ([]model.FlowCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.FlowCount
	for _, c := range s.counts {
		if c.OrganizationId == orgId && c.FlowUuid == flowUuid {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Uuid == out[j].Uuid {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Uuid < out[j].Uuid
	})
	return out, nil
}

func (s *Store) PushJob(ctx context.Context, job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Store) PollDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.jobs, func(i, j int) bool { return s.jobs[i].DueAt.Before(s.jobs[j].DueAt) })
	var due []*model.Job
	rest := s.jobs[:0]
	for _, job := range s.jobs {
		if !job.DueAt.After(now) && (limit <= 0 || len(due) < limit) {
			j := job
			due = append(due, &j)
			continue
		}
		rest = append(rest, job)
	}
	s.jobs = rest
	return due, nil
}

// PendingJobs returns a snapshot of the queued jobs in due order.
func (s *Store) PendingJobs() []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Job(nil), s.jobs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

func (s *Store) PushOutbound(ctx context.Context, msg model.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbound = append(s.outbound, msg)
	return nil
}

func (s *Store) PopOutbound(ctx context.Context, batchSize int) ([]*model.OutboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outbound) == 0 {
		return nil, persistence.ErrEmptyQueue
	}
	n := batchSize
	if n <= 0 || n > len(s.outbound) {
		n = len(s.outbound)
	}
	out := make([]*model.OutboundMessage, 0, n)
	for i := 0; i < n; i++ {
		m := s.outbound[i]
		out = append(out, &m)
	}
	s.outbound = s.outbound[n:]
	return out, nil
}
