package orgconfig

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const DEFAULT_DRAFT_MARKER = "draft:"

type Period string

const PERIOD_DAILY Period = "daily"
const PERIOD_WEEKLY Period = "weekly"
const PERIOD_MONTHLY Period = "monthly"
const PERIOD_OUTSIDE_HOURS Period = "outside_hours"
const PERIOD_DEFAULT Period = "default"

// PeriodicFlow is started for contacts that have nothing else to do. Lower
// priority values run first.
type PeriodicFlow struct {
	Name     string `yaml:"name" validate:"required"`
	FlowUuid string `yaml:"flow_uuid" validate:"required"`
	Priority int    `yaml:"priority" validate:"gte=0"`
	Period   Period `yaml:"period" validate:"required,oneof=daily weekly monthly outside_hours default"`
}

type OfficeHours struct {
	Timezone string   `yaml:"timezone"`
	Start    string   `yaml:"start" validate:"required,datetime=15:04"`
	End      string   `yaml:"end" validate:"required,datetime=15:04"`
	Days     []string `yaml:"days" validate:"dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`
}

func (o *OfficeHours) Location() *time.Location {
	if len(o.Timezone) == 0 {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Contains reports whether t falls inside office hours. An empty day list
// means every day.
func (o *OfficeHours) Contains(t time.Time) bool {
	local := t.In(o.Location())
	if len(o.Days) != 0 {
		day := strings.ToLower(local.Weekday().String())
		open := false
		for _, d := range o.Days {
			if d == day {
				open = true
				break
			}
		}
		if !open {
			return false
		}
	}
	start, err := time.Parse("15:04", o.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", o.End)
	if err != nil {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= start.Hour()*60+start.Minute() && minute < end.Hour()*60+end.Minute()
}

type Organization struct {
	Id              int64          `yaml:"id" validate:"required,gt=0"`
	Name            string         `yaml:"name"`
	OptinFlowUuid   string         `yaml:"optin_flow_uuid"`
	OptinPrompt     string         `yaml:"optin_prompt"`
	NewContactDelay time.Duration  `yaml:"new_contact_delay" validate:"gte=0"`
	DraftMarker     string         `yaml:"draft_marker"`
	BetaTesters     []string       `yaml:"beta_testers"`
	OfficeHours     *OfficeHours   `yaml:"office_hours"`
	PeriodicFlows   []PeriodicFlow `yaml:"periodic_flows" validate:"dive"`
}

// IsBetaTester reports whether the contact with phone may run draft flows by keyword.
func (o *Organization) IsBetaTester(phone string) bool {
	for _, p := range o.BetaTesters {
		if p == phone {
			return true
		}
	}
	return false
}

type file struct {
	Organizations []*Organization `yaml:"organizations" validate:"dive"`
}

// Registry holds the settings of every organization. Organizations without
// an entry get the defaults.
type Registry struct {
	mu       sync.RWMutex
	orgs     map[int64]*Organization
	validate *validator.Validate
}

func NewRegistry() *Registry {
	return &Registry{
		orgs:     make(map[int64]*Organization),
		validate: validator.New(),
	}
}

func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading organization config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing organization config: %w", err)
	}
	r := NewRegistry()
	if err := r.validate.Struct(&f); err != nil {
		return nil, formatError(err)
	}
	for _, org := range f.Organizations {
		r.orgs[org.Id] = withDefaults(org)
	}
	return r, nil
}

func (r *Registry) Put(org *Organization) error {
	if err := r.validate.Struct(org); err != nil {
		return formatError(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[org.Id] = withDefaults(org)
	return nil
}

func (r *Registry) Get(orgId int64) *Organization {
	r.mu.RLock()
	org, ok := r.orgs[orgId]
	r.mu.RUnlock()
	if ok {
		return org
	}
	return withDefaults(&Organization{Id: orgId})
}

func withDefaults(org *Organization) *Organization {
	if len(org.DraftMarker) == 0 {
		org.DraftMarker = DEFAULT_DRAFT_MARKER
	}
	org.DraftMarker = strings.ToLower(org.DraftMarker)
	return org
}

func formatError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("organization config validation: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s' (got: %v)", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("organization config validation failed: %s", strings.Join(msgs, "; "))
}
