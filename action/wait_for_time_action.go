package action

import (
	"context"
	"fmt"
	"time"

	"github.com/mohitkumar/convoflow/model"
)

var _ Resumable = new(waitForTimeAction)

type waitForTimeAction struct {
	baseAction
	params struct {
		DelaySeconds int `mapstructure:"delay_seconds"`
	}
}

func (w *waitForTimeAction) Validate() error {
	if w.params.DelaySeconds <= 0 {
		return fmt.Errorf("action=%s, delay value %d wrong", w.uuid, w.params.DelaySeconds)
	}
	return nil
}

func (w *waitForTimeAction) Execute(ctx context.Context, env *Env) (Outcome, error) {
	due := env.Now().Add(time.Duration(w.params.DelaySeconds) * time.Second)
	wait := model.Wait{Kind: model.WAIT_TIME, Token: env.NewToken(), Deadline: &due, ActionUuid: w.uuid}
	err := env.ScheduleResume(ctx, due, model.Signal{Kind: model.SIGNAL_TIMER, Token: wait.Token, Payload: model.TIMER_ELAPSED})
	if err != nil {
		return Outcome{}, fmt.Errorf("action=%s, scheduling delay failed %w", w.uuid, err)
	}
	return Suspend(model.WAITING_TIME, wait), nil
}

func (w *waitForTimeAction) Resume(ctx context.Context, env *Env, signal model.Signal) (Outcome, error) {
	if signal.Kind != model.SIGNAL_TIMER {
		return Outcome{}, fmt.Errorf("action=%s, can not resume a delay with %s", w.uuid, signal.Kind)
	}
	return Continue(), nil
}
