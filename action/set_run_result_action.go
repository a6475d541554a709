package action

import (
	"context"
	"fmt"

	"github.com/mohitkumar/convoflow/util"
)

var _ Action = new(setRunResultAction)

// setRunResultAction stores either a templated value or the value of a
// javascript expression evaluated against the run variables.
type setRunResultAction struct {
	baseAction
	params struct {
		Name       string `mapstructure:"name"`
		Value      string `mapstructure:"value"`
		Expression string `mapstructure:"expression"`
	}
}

func (s *setRunResultAction) Validate() error {
	if len(s.params.Name) == 0 {
		return fmt.Errorf("action=%s, result name can not be empty", s.uuid)
	}
	if len(s.params.Value) == 0 && len(s.params.Expression) == 0 {
		return fmt.Errorf("action=%s, either value or expression is required", s.uuid)
	}
	return nil
}

func (s *setRunResultAction) Execute(ctx context.Context, env *Env) (Outcome, error) {
	vars := env.Vars()
	if len(s.params.Expression) != 0 {
		val, err := util.EvalJs(s.params.Expression, vars)
		if err != nil {
			return Outcome{}, fmt.Errorf("action=%s, %w", s.uuid, err)
		}
		env.SetResult(s.params.Name, val)
		return Continue(), nil
	}
	env.SetResult(s.params.Name, util.ResolveTemplate(vars, s.params.Value))
	return Continue(), nil
}
