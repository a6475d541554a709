package action

import "context"

var _ Action = new(exitFlowAction)

type exitFlowAction struct {
	baseAction
}

func (e *exitFlowAction) Validate() error {
	return nil
}

func (e *exitFlowAction) Execute(ctx context.Context, env *Env) (Outcome, error) {
	return Outcome{Kind: EXIT}, nil
}
