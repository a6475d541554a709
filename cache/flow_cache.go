package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mohitkumar/convoflow/flow"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrFlowNotFound = errors.New("flow not found")

type keyKind int

const identityLookup keyKind = 1
const keywordLookup keyKind = 2

type Key struct {
	kind   keyKind
	value  string
	status model.FlowStatus
}

func ByIdentity(uuid string, status model.FlowStatus) Key {
	return Key{kind: identityLookup, value: uuid, status: status}
}

func ByKeyword(keyword string, status model.FlowStatus) Key {
	return Key{kind: keywordLookup, value: model.NormalizeKeyword(keyword), status: status}
}

func (k Key) String() string {
	if k.kind == keywordLookup {
		return fmt.Sprintf("keyword:%s:%s", k.value, k.status)
	}
	return identityKey(k.value, k.status)
}

// KeywordIndex maps status to normalized keyword to flow.
type KeywordIndex map[model.FlowStatus]map[string]*flow.Flow

func (ki KeywordIndex) Get(keyword string, status model.FlowStatus) (*flow.Flow, bool) {
	fl, ok := ki[status][model.NormalizeKeyword(keyword)]
	return fl, ok
}

// orgIndex is never mutated once stored; publishing swaps in a new one.
type orgIndex struct {
	byIdentity map[string]*flow.Flow
	keywords   KeywordIndex
}

func identityKey(uuid string, status model.FlowStatus) string {
	return uuid + ":" + string(status)
}

func newOrgIndex() *orgIndex {
	return &orgIndex{
		byIdentity: make(map[string]*flow.Flow),
		keywords: KeywordIndex{
			model.DRAFT:     make(map[string]*flow.Flow),
			model.PUBLISHED: make(map[string]*flow.Flow),
		},
	}
}

func (oi *orgIndex) clone() *orgIndex {
	out := newOrgIndex()
	for k, v := range oi.byIdentity {
		out.byIdentity[k] = v
	}
	for status, m := range oi.keywords {
		for k, v := range m {
			out.keywords[status][k] = v
		}
	}
	return out
}

func (oi *orgIndex) put(fl *flow.Flow) {
	if previous, ok := oi.byIdentity[identityKey(fl.Uuid(), fl.Status())]; ok {
		for _, k := range previous.Keywords() {
			if oi.keywords[fl.Status()][k] == previous {
				delete(oi.keywords[fl.Status()], k)
			}
		}
	}
	oi.byIdentity[identityKey(fl.Uuid(), fl.Status())] = fl
	for _, k := range fl.Keywords() {
		oi.keywords[fl.Status()][k] = fl
	}
}

// FlowCache holds the compiled flows of every organization that has been
// looked up. Reads are lock free; a miss compiles the organization once no
// matter how many callers miss concurrently.
type FlowCache struct {
	cache     *c.Cache
	store     persistence.FlowStore
	group     singleflight.Group
	publishMu sync.Mutex
	ttl       time.Duration
}

func NewFlowCache(store persistence.FlowStore, ttl time.Duration) *FlowCache {
	if ttl <= 0 {
		ttl = c.NoExpiration
	}
	return &FlowCache{
		cache: c.New(ttl, 10*time.Minute),
		store: store,
		ttl:   ttl,
	}
}

func orgKey(orgId int64) string {
	return strconv.FormatInt(orgId, 10)
}

func (fc *FlowCache) Lookup(ctx context.Context, orgId int64, key Key) (*flow.Flow, error) {
	idx, err := fc.index(ctx, orgId)
	if err != nil {
		return nil, err
	}
	var fl *flow.Flow
	var ok bool
	switch key.kind {
	case identityLookup:
		fl, ok = idx.byIdentity[identityKey(key.value, key.status)]
	case keywordLookup:
		fl, ok = idx.keywords.Get(key.value, key.status)
	}
	if !ok {
		return nil, fmt.Errorf("org=%d, %s (%s): %w", orgId, key.value, key.status, ErrFlowNotFound)
	}
	return fl, nil
}

// Keywords returns the organization's keyword index. The result must not be modified.
func (fc *FlowCache) Keywords(ctx context.Context, orgId int64) (KeywordIndex, error) {
	idx, err := fc.index(ctx, orgId)
	if err != nil {
		return nil, err
	}
	return idx.keywords, nil
}

// Publish compiles doc and, only when it compiles cleanly, stores it and
// replaces the organization's index.
func (fc *FlowCache) Publish(ctx context.Context, doc *model.FlowDocument) (*flow.Flow, error) {
	fl, errs := flow.Compile(doc.OrganizationId, doc)
	if len(errs) != 0 {
		return nil, errs
	}
	fc.publishMu.Lock()
	defer fc.publishMu.Unlock()
	if err := fc.store.SaveFlow(ctx, doc); err != nil {
		return nil, err
	}
	current, err := fc.index(ctx, doc.OrganizationId)
	if err != nil {
		return nil, err
	}
	next := current.clone()
	next.put(fl)
	fc.cache.Set(orgKey(doc.OrganizationId), next, c.DefaultExpiration)
	logger.Info("flow published", zap.Int64("organization", doc.OrganizationId), zap.String("flow", fl.Uuid()),
		zap.String("status", string(fl.Status())), zap.Strings("keywords", fl.Keywords()))
	return fl, nil
}

// Invalidate drops the organization's index; the next lookup reloads it.
func (fc *FlowCache) Invalidate(orgId int64) {
	fc.cache.Delete(orgKey(orgId))
}

func (fc *FlowCache) index(ctx context.Context, orgId int64) (*orgIndex, error) {
	if v, found := fc.cache.Get(orgKey(orgId)); found {
		return v.(*orgIndex), nil
	}
	v, err, _ := fc.group.Do(orgKey(orgId), func() (any, error) {
		if v, found := fc.cache.Get(orgKey(orgId)); found {
			return v, nil
		}
		idx, err := fc.load(ctx, orgId)
		if err != nil {
			return nil, err
		}
		fc.cache.Add(orgKey(orgId), idx, c.DefaultExpiration)
		if v, found := fc.cache.Get(orgKey(orgId)); found {
			return v, nil
		}
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*orgIndex), nil
}

// load compiles every stored flow of the organization in flow id order, so a
// keyword registered by two flows resolves to the one with the higher id.
func (fc *FlowCache) load(ctx context.Context, orgId int64) (*orgIndex, error) {
	docs, err := fc.store.ListFlows(ctx, orgId)
	if err != nil {
		return nil, err
	}
	idx := newOrgIndex()
	for _, doc := range docs {
		fl, errs := flow.Compile(orgId, doc)
		if len(errs) != 0 {
			logger.Warn("skipping flow with validation errors", zap.Int64("organization", orgId), zap.String("flow", doc.Uuid), zap.Error(errs))
			continue
		}
		idx.put(fl)
	}
	logger.Debug("flow index loaded", zap.Int64("organization", orgId), zap.Int("flows", len(idx.byIdentity)))
	return idx, nil
}
