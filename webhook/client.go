package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"go.uber.org/zap"
)

const DEFAULT_MAX_RETRIES = 3
const DEFAULT_RETRY_INTERVAL = 500 * time.Millisecond
const MAX_RESPONSE_BYTES = 1 << 20

type ClientConfig struct {
	MaxRetries    int
	RetryInterval time.Duration
}

type Response struct {
	Status int
	Body   any
}

// Client performs a single webhook request. Network errors and 5xx responses
// are retried; any other response is returned as is.
type Client struct {
	http *http.Client
	conf ClientConfig
}

func NewClient(httpClient *http.Client, conf ClientConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if conf.MaxRetries < 0 {
		conf.MaxRetries = 0
	}
	if conf.RetryInterval <= 0 {
		conf.RetryInterval = DEFAULT_RETRY_INTERVAL
	}
	return &Client{http: httpClient, conf: conf}
}

func (c *Client) Do(ctx context.Context, req model.WebhookRequest) (*Response, error) {
	var payload []byte
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding webhook body failed %w", err)
		}
		payload = data
	}
	var res *Response
	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.conf.RetryInterval), uint64(c.conf.MaxRetries)), ctx)
	err := backoff.Retry(func() error {
		attempt++
		r, err := c.do(ctx, req, payload)
		if err != nil {
			logger.Warn("webhook attempt failed", zap.String("url", req.Url), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		res = r
		if r.Status >= 500 {
			logger.Warn("webhook attempt failed", zap.String("url", req.Url), zap.Int("attempt", attempt), zap.Int("status", r.Status))
			return fmt.Errorf("webhook returned status %d", r.Status)
		}
		return nil
	}, b)
	if res != nil {
		return res, nil
	}
	return nil, err
}

func (c *Client) do(ctx context.Context, req model.WebhookRequest, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Url, body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, MAX_RESPONSE_BYTES))
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Body: decodeBody(data)}, nil
}

// decodeBody keeps a JSON body structured so routers can address its fields.
func decodeBody(data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		return v
	}
	return string(data)
}
