package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohitkumar/convoflow/action"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

var ErrUnknownToken = errors.New("unknown or expired webhook token")
var ErrNotBound = errors.New("webhook runner has no deliverer")

var _ action.WebhookCaller = new(Runner)

// Deliverer routes a webhook result back to the context waiting on it.
type Deliverer interface {
	DeliverSignal(ctx context.Context, orgId int64, contactId int64, contextId string, signal model.Signal) error
}

type pending struct {
	orgId     int64
	contactId int64
	contextId string
}

// Runner issues webhook calls off the executing turn. Each call is
// remembered by token until its result is delivered or the call times out;
// a 202 response keeps the token open for POST /webhooks/{token}.
type Runner struct {
	client    *Client
	deliverer Deliverer
	tokens    *cache.Cache
	mu        sync.Mutex
	wg        sync.WaitGroup
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewRunner(client *Client) *Runner {
	return &Runner{
		client: client,
		tokens: cache.New(action.DEFAULT_WEBHOOK_TIMEOUT, time.Minute),
		stop:   make(chan struct{}),
	}
}

// Bind sets where results go. It must be called before the first Call.
func (r *Runner) Bind(d Deliverer) {
	r.deliverer = d
}

func (r *Runner) Call(ctx context.Context, req model.WebhookRequest) error {
	if r.deliverer == nil {
		return ErrNotBound
	}
	select {
	case <-r.stop:
		return errors.New("webhook runner stopped")
	default:
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = action.DEFAULT_WEBHOOK_TIMEOUT
	}
	r.tokens.Set(req.Token, pending{orgId: req.OrganizationId, contactId: req.ContactId, contextId: req.ContextId}, timeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		callCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		go func() {
			select {
			case <-r.stop:
				cancel()
			case <-callCtx.Done():
			}
		}()
		res, err := r.client.Do(callCtx, req)
		select {
		case <-r.stop:
			// the timeout job still settles the wait after a restart
			return
		default:
		}
		if err != nil {
			logger.Warn("webhook call failed", zap.String("url", req.Url), zap.String("context", req.ContextId), zap.Error(err))
			r.complete(context.Background(), req.Token, 0, err.Error())
			return
		}
		if res.Status == 202 {
			logger.Debug("webhook accepted, waiting for callback", zap.String("token", req.Token))
			return
		}
		r.complete(context.Background(), req.Token, res.Status, res.Body)
	}()
	return nil
}

// Callback delivers a result posted by the remote side for token.
func (r *Runner) Callback(ctx context.Context, token string, status int, body any) error {
	return r.complete(ctx, token, status, body)
}

func (r *Runner) complete(ctx context.Context, token string, status int, body any) error {
	r.mu.Lock()
	v, found := r.tokens.Get(token)
	if found {
		r.tokens.Delete(token)
	}
	r.mu.Unlock()
	if !found {
		return ErrUnknownToken
	}
	p := v.(pending)
	signal := model.WebhookSignal(token, Category(status), status, body)
	if err := r.deliverer.DeliverSignal(ctx, p.orgId, p.contactId, p.contextId, signal); err != nil {
		logger.Error("webhook result could not be delivered", zap.String("context", p.contextId), zap.Error(err))
		return fmt.Errorf("delivering webhook result failed %w", err)
	}
	return nil
}

func Category(status int) string {
	if status >= 200 && status < 300 {
		return model.WEBHOOK_SUCCESS
	}
	return model.WEBHOOK_FAILURE
}

// Pending reports whether token still waits for a result.
func (r *Runner) Pending(token string) bool {
	_, found := r.tokens.Get(token)
	return found
}

func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.wg.Wait()
}
