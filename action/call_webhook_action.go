package action

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/util"
	"go.uber.org/zap"
)

var _ Resumable = new(callWebhookAction)

const DEFAULT_WEBHOOK_TIMEOUT = 30 * time.Second

type callWebhookAction struct {
	baseAction
	params struct {
		Url            string            `mapstructure:"url"`
		Method         string            `mapstructure:"method"`
		Headers        map[string]string `mapstructure:"headers"`
		Body           map[string]any    `mapstructure:"body"`
		ResultName     string            `mapstructure:"result_name"`
		TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	}
}

func (c *callWebhookAction) Validate() error {
	if len(c.params.Url) == 0 {
		return fmt.Errorf("action=%s, url can not be empty", c.uuid)
	}
	if !strings.Contains(c.params.Url, "{") {
		if _, err := url.ParseRequestURI(c.params.Url); err != nil {
			return fmt.Errorf("action=%s, invalid url %s", c.uuid, c.params.Url)
		}
	}
	switch strings.ToUpper(c.params.Method) {
	case "", "GET", "POST", "PUT", "PATCH", "DELETE":
	default:
		return fmt.Errorf("action=%s, unsupported method %s", c.uuid, c.params.Method)
	}
	return nil
}

func (c *callWebhookAction) timeout() time.Duration {
	if c.params.TimeoutSeconds > 0 {
		return time.Duration(c.params.TimeoutSeconds) * time.Second
	}
	return DEFAULT_WEBHOOK_TIMEOUT
}

func (c *callWebhookAction) Execute(ctx context.Context, env *Env) (Outcome, error) {
	vars := env.Vars()
	fc := env.FlowContext
	method := strings.ToUpper(c.params.Method)
	if len(method) == 0 {
		method = "POST"
	}
	headers := make(map[string]string, len(c.params.Headers))
	for k, v := range c.params.Headers {
		headers[k] = util.ResolveTemplate(vars, v)
	}
	token := env.NewToken()
	req := model.WebhookRequest{
		OrganizationId: fc.OrganizationId,
		ContactId:      fc.ContactId,
		ContextId:      fc.Id,
		Token:          token,
		Url:            util.ResolveTemplate(vars, c.params.Url),
		Method:         method,
		Headers:        headers,
		Body:           util.ResolveParams(vars, c.params.Body),
		Timeout:        c.timeout(),
	}
	deadline := env.Now().Add(req.Timeout)
	timeoutSignal := model.WebhookSignal(token, model.WEBHOOK_FAILURE, 0, "timeout")
	if err := env.ScheduleResume(ctx, deadline, timeoutSignal); err != nil {
		return Outcome{}, fmt.Errorf("action=%s, scheduling webhook timeout failed %w", c.uuid, err)
	}
	if err := env.Services.Webhooks.Call(ctx, req); err != nil {
		logger.Warn("webhook call could not be issued, routing failure", zap.String("action", c.uuid), zap.String("url", req.Url), zap.Error(err))
		c.record(env, model.WebhookSignal(token, model.WEBHOOK_FAILURE, 0, err.Error()))
		return Continue(), nil
	}
	return Suspend(model.WAITING_WEBHOOK, model.Wait{Kind: model.WAIT_WEBHOOK, Token: token, Deadline: &deadline, ActionUuid: c.uuid}), nil
}

func (c *callWebhookAction) Resume(ctx context.Context, env *Env, signal model.Signal) (Outcome, error) {
	if signal.Kind != model.SIGNAL_WEBHOOK_RESULT {
		return Outcome{}, fmt.Errorf("action=%s, can not resume a webhook wait with %s", c.uuid, signal.Kind)
	}
	c.record(env, signal)
	return Continue(), nil
}

func (c *callWebhookAction) record(env *Env, signal model.Signal) {
	env.FlowContext.LastInput = signal.Payload
	name := c.params.ResultName
	if len(name) == 0 {
		name = "webhook"
	}
	env.SetResult(name, signal.Data)
}
