package action

import (
	"context"
	"fmt"
	"time"

	"github.com/mohitkumar/convoflow/model"
)

var _ Resumable = new(waitForResponseAction)

type waitForResponseAction struct {
	baseAction
	params struct {
		ResultName     string `mapstructure:"result_name"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	}
}

func (w *waitForResponseAction) Validate() error {
	if w.params.TimeoutSeconds < 0 {
		return fmt.Errorf("action=%s, timeout %d can not be negative", w.uuid, w.params.TimeoutSeconds)
	}
	return nil
}

func (w *waitForResponseAction) Execute(ctx context.Context, env *Env) (Outcome, error) {
	wait := model.Wait{Kind: model.WAIT_MESSAGE, Token: env.NewToken(), ActionUuid: w.uuid}
	if w.params.TimeoutSeconds > 0 {
		deadline := env.Now().Add(time.Duration(w.params.TimeoutSeconds) * time.Second)
		wait.Deadline = &deadline
		err := env.ScheduleResume(ctx, deadline, model.Signal{Kind: model.SIGNAL_TIMER, Token: wait.Token, Payload: model.TIMER_EXPIRED})
		if err != nil {
			return Outcome{}, fmt.Errorf("action=%s, scheduling response timeout failed %w", w.uuid, err)
		}
	}
	return Suspend(model.WAITING_MESSAGE, wait), nil
}

func (w *waitForResponseAction) Resume(ctx context.Context, env *Env, signal model.Signal) (Outcome, error) {
	switch signal.Kind {
	case model.SIGNAL_USER_MESSAGE:
		env.FlowContext.LastInput = signal.Payload
		env.SetResult(w.params.ResultName, signal.Payload)
	case model.SIGNAL_TIMER:
		env.SetResult(w.params.ResultName, model.TIMER_EXPIRED)
	default:
		return Outcome{}, fmt.Errorf("action=%s, can not resume a response wait with %s", w.uuid, signal.Kind)
	}
	return Continue(), nil
}
