package delivery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/util"
	"go.uber.org/zap"
)

// LogTransport only logs; used when no channel endpoint is configured.
type LogTransport struct {
}

func (LogTransport) Deliver(ctx context.Context, msg *model.OutboundMessage) error {
	logger.Info("outbound message", zap.Int64("organization", msg.OrganizationId), zap.Int64("contact", msg.ContactId),
		zap.String("flow", msg.FlowUuid), zap.String("node", msg.NodeUuid), zap.String("body", msg.Body))
	return nil
}

// HttpTransport posts each message as JSON to the channel endpoint.
type HttpTransport struct {
	url        string
	client     *http.Client
	maxRetries uint64
	interval   time.Duration
	encDec     *util.JsonEncDec[model.OutboundMessage]
}

func NewHttpTransport(url string, client *http.Client, maxRetries int, interval time.Duration) *HttpTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HttpTransport{
		url:        url,
		client:     client,
		maxRetries: uint64(maxRetries),
		interval:   interval,
		encDec:     util.NewJsonEncoderDecoder[model.OutboundMessage](),
	}
}

func (t *HttpTransport) Deliver(ctx context.Context, msg *model.OutboundMessage) error {
	data, err := t.encDec.Encode(*msg)
	if err != nil {
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(t.interval), t.maxRetries), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("channel endpoint returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("channel endpoint rejected message with status %d", resp.StatusCode))
		}
		return nil
	}, b)
}
