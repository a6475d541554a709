package action

import (
	"context"
	"fmt"
)

var _ Action = new(enterFlowAction)

// enterFlowAction hands control to another flow. The engine suspends the
// current context and records the child's result when it returns.
type enterFlowAction struct {
	baseAction
	params struct {
		FlowUuid string `mapstructure:"flow_uuid"`
	}
}

func (e *enterFlowAction) Validate() error {
	if len(e.params.FlowUuid) == 0 {
		return fmt.Errorf("action=%s, flow_uuid can not be empty", e.uuid)
	}
	return nil
}

func (e *enterFlowAction) Execute(ctx context.Context, env *Env) (Outcome, error) {
	return Outcome{Kind: ENTER, FlowUuid: e.params.FlowUuid}, nil
}

func (e *enterFlowAction) FlowUuid() string {
	return e.params.FlowUuid
}
