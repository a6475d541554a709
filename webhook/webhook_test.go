package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohitkumar/convoflow/model"
	"github.com/stretchr/testify/require"
)

type delivered struct {
	contextId string
	signal    model.Signal
}

type chanDeliverer struct {
	ch chan delivered
}

func (c *chanDeliverer) DeliverSignal(ctx context.Context, orgId int64, contactId int64, contextId string, signal model.Signal) error {
	c.ch <- delivered{contextId: contextId, signal: signal}
	return nil
}

func newRunner(t *testing.T) (*Runner, *chanDeliverer) {
	d := &chanDeliverer{ch: make(chan delivered, 4)}
	r := NewRunner(NewClient(nil, ClientConfig{MaxRetries: 2, RetryInterval: 10 * time.Millisecond}))
	r.Bind(d)
	t.Cleanup(r.Stop)
	return r, d
}

func request(url string, token string) model.WebhookRequest {
	return model.WebhookRequest{
		OrganizationId: 1,
		ContactId:      2,
		ContextId:      "ctx-1",
		Token:          token,
		Url:            url,
		Method:         http.MethodPost,
		Headers:        map[string]string{"X-Api-Key": "secret"},
		Body:           map[string]any{"name": "asha"},
		Timeout:        5 * time.Second,
	}
}

func receive(t *testing.T, d *chanDeliverer) delivered {
	select {
	case got := <-d.ch:
		return got
	case <-time.After(5 * time.Second):
		t.Fatal("no webhook result delivered")
	}
	return delivered{}
}

func TestCallDeliversResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		if req.Header.Get("X-Api-Key") != "secret" || body["name"] != "asha" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score": 7}`))
	}))
	defer srv.Close()

	r, d := newRunner(t)
	require.NoError(t, r.Call(context.Background(), request(srv.URL, "tok-1")))
	got := receive(t, d)
	require.Equal(t, "ctx-1", got.contextId)
	require.Equal(t, model.SIGNAL_WEBHOOK_RESULT, got.signal.Kind)
	require.Equal(t, "tok-1", got.signal.Token)
	require.Equal(t, model.WEBHOOK_SUCCESS, got.signal.Payload)
	require.Equal(t, 200, got.signal.Data["status"])
	require.Equal(t, map[string]any{"score": float64(7)}, got.signal.Data["body"])
	require.False(t, r.Pending("tok-1"))
}

func TestCallRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	r, d := newRunner(t)
	require.NoError(t, r.Call(context.Background(), request(srv.URL, "tok-2")))
	got := receive(t, d)
	require.Equal(t, model.WEBHOOK_SUCCESS, got.signal.Payload)
	require.Equal(t, "ok", got.signal.Data["body"])
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCallClientErrorIsFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r, d := newRunner(t)
	require.NoError(t, r.Call(context.Background(), request(srv.URL, "tok-3")))
	got := receive(t, d)
	require.Equal(t, model.WEBHOOK_FAILURE, got.signal.Payload)
	require.Equal(t, 404, got.signal.Data["status"])
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAcceptedWaitsForCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	r, d := newRunner(t)
	require.NoError(t, r.Call(context.Background(), request(srv.URL, "tok-4")))
	require.Eventually(t, func() bool { return len(d.ch) == 0 && r.Pending("tok-4") }, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Callback(context.Background(), "tok-4", 200, map[string]any{"done": true}))
	got := receive(t, d)
	require.Equal(t, model.WEBHOOK_SUCCESS, got.signal.Payload)

	require.ErrorIs(t, r.Callback(context.Background(), "tok-4", 200, nil), ErrUnknownToken)
	require.ErrorIs(t, r.Callback(context.Background(), "never-issued", 200, nil), ErrUnknownToken)
}

func TestUnboundRunner(t *testing.T) {
	r := NewRunner(NewClient(nil, ClientConfig{}))
	defer r.Stop()
	require.ErrorIs(t, r.Call(context.Background(), request("http://127.0.0.1:1", "tok-5")), ErrNotBound)
}

func TestCategory(t *testing.T) {
	tests := map[string]struct {
		status   int
		category string
	}{
		"ok":          {status: 200, category: model.WEBHOOK_SUCCESS},
		"created":     {status: 201, category: model.WEBHOOK_SUCCESS},
		"redirect":    {status: 302, category: model.WEBHOOK_FAILURE},
		"bad request": {status: 400, category: model.WEBHOOK_FAILURE},
		"no response": {status: 0, category: model.WEBHOOK_FAILURE},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.category, Category(tc.status))
		})
	}
}
