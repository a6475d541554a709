package periodic

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mohitkumar/convoflow/cache"
	"github.com/mohitkumar/convoflow/engine"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/orgconfig"
	"github.com/mohitkumar/convoflow/persistence"
	"go.uber.org/zap"
)

type Starter interface {
	StartByUuid(ctx context.Context, contact *model.Contact, flowUuid string, status model.FlowStatus) (*engine.TurnResult, error)
}

// Runner starts at most one periodic flow for a contact that is not in any flow.
type Runner struct {
	starter  Starter
	contacts persistence.ContactStore
	clock    func() time.Time
}

func NewRunner(starter Starter, contacts persistence.ContactStore, clock func() time.Time) *Runner {
	if clock == nil {
		clock = time.Now
	}
	return &Runner{starter: starter, contacts: contacts, clock: clock}
}

// Run picks the first eligible periodic flow by priority, then name, and
// starts it. A candidate whose flow is not published is skipped. started is
// false when nothing was eligible.
func (r *Runner) Run(ctx context.Context, org *orgconfig.Organization, contact *model.Contact) (*engine.TurnResult, bool, error) {
	now := r.clock()
	candidates := append([]orgconfig.PeriodicFlow(nil), org.PeriodicFlows...)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].Name < candidates[j].Name
	})
	for _, pf := range candidates {
		if !Eligible(org, pf, contact.LastPeriodicRuns[pf.Name], now) {
			continue
		}
		res, err := r.starter.StartByUuid(ctx, contact, pf.FlowUuid, model.PUBLISHED)
		if errors.Is(err, cache.ErrFlowNotFound) {
			logger.Warn("periodic flow not published, skipping", zap.String("periodic", pf.Name), zap.String("flow", pf.FlowUuid))
			continue
		}
		if err != nil {
			logger.Error("periodic flow could not start", zap.String("periodic", pf.Name), zap.String("flow", pf.FlowUuid), zap.Error(err))
			return res, false, err
		}
		if contact.LastPeriodicRuns == nil {
			contact.LastPeriodicRuns = make(map[string]time.Time)
		}
		contact.LastPeriodicRuns[pf.Name] = now
		contact.UpdatedAt = now
		if err := r.contacts.SaveContact(ctx, contact); err != nil {
			logger.Warn("could not record periodic run", zap.Int64("contact", contact.Id), zap.String("periodic", pf.Name), zap.Error(err))
		}
		logger.Info("periodic flow started", zap.Int64("contact", contact.Id), zap.String("periodic", pf.Name), zap.String("flow", pf.FlowUuid))
		return res, true, nil
	}
	return nil, false, nil
}

// Eligible reports whether pf may run at now given when it last ran for the contact.
func Eligible(org *orgconfig.Organization, pf orgconfig.PeriodicFlow, lastRun time.Time, now time.Time) bool {
	loc := time.UTC
	if org.OfficeHours != nil {
		loc = org.OfficeHours.Location()
	}
	never := lastRun.IsZero()
	last, current := lastRun.In(loc), now.In(loc)
	switch pf.Period {
	case orgconfig.PERIOD_DAILY:
		return never || !sameDay(last, current)
	case orgconfig.PERIOD_WEEKLY:
		if never {
			return true
		}
		ly, lw := last.ISOWeek()
		cy, cw := current.ISOWeek()
		return ly != cy || lw != cw
	case orgconfig.PERIOD_MONTHLY:
		return never || last.Year() != current.Year() || last.Month() != current.Month()
	case orgconfig.PERIOD_OUTSIDE_HOURS:
		if org.OfficeHours == nil || org.OfficeHours.Contains(now) {
			return false
		}
		return never || !sameDay(last, current)
	case orgconfig.PERIOD_DEFAULT:
		return true
	}
	return false
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
