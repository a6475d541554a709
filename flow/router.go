package flow

import (
	"strings"
	"time"
)

// OTHER is the category recorded when the default exit is taken.
const OTHER = "Other"

type Case struct {
	uuid   string
	values []string
	exit   *Exit
}

func (c *Case) Uuid() string { return c.uuid }
func (c *Case) Exit() *Exit  { return c.exit }

func (c *Case) Category() string {
	if len(c.values) == 0 {
		return ""
	}
	return c.values[0]
}

type Wait struct {
	timeout     time.Duration
	timeoutExit *Exit
}

func (w *Wait) Timeout() time.Duration { return w.timeout }
func (w *Wait) TimeoutExit() *Exit     { return w.timeoutExit }

type Router struct {
	operand     string
	cases       []*Case
	defaultExit *Exit
	wait        *Wait
	resultName  string
}

func (r *Router) Operand() string    { return r.operand }
func (r *Router) Cases() []*Case     { return r.cases }
func (r *Router) DefaultExit() *Exit { return r.defaultExit }
func (r *Router) Wait() *Wait        { return r.wait }
func (r *Router) ResultName() string { return r.resultName }

// Match returns the exit for value. The first case whose value equals the
// operand ignoring case and surrounding whitespace wins, then the default.
// ok is false when nothing matched and no default is declared.
func (r *Router) Match(value string) (exit *Exit, category string, ok bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, c := range r.cases {
		for _, cv := range c.values {
			if strings.ToLower(strings.TrimSpace(cv)) == v {
				return c.exit, c.Category(), true
			}
		}
	}
	if r.defaultExit != nil {
		return r.defaultExit, OTHER, true
	}
	return nil, "", false
}

// Expire picks the exit for a timed out wait, falling back to the default.
func (r *Router) Expire() (*Exit, bool) {
	if r.wait != nil && r.wait.timeoutExit != nil {
		return r.wait.timeoutExit, true
	}
	if r.defaultExit != nil {
		return r.defaultExit, true
	}
	return nil, false
}
