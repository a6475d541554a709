package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohitkumar/convoflow/config"
	"github.com/stretchr/testify/require"
)

const favoriteFlow = `{
  "uuid": "favorite", "id": 1, "organization_id": 1, "status": "published", "keywords": ["color"],
  "nodes": [
    {"uuid": "ask",
     "actions": [
       {"uuid": "ask-send", "type": "send_msg", "text": "Favorite color?"},
       {"uuid": "ask-wait", "type": "wait_for_response", "result_name": "color"}
     ],
     "exits": [{"uuid": "ask-exit", "destination_uuid": "bye"}]},
    {"uuid": "bye",
     "actions": [{"uuid": "bye-send", "type": "send_msg", "text": "@results.color is nice"}],
     "exits": [{"uuid": "bye-exit"}]}
  ]
}`

const scoreFlow = `{
  "uuid": "score", "id": 2, "organization_id": 1, "status": "published", "keywords": ["score"],
  "nodes": [
    {"uuid": "call",
     "actions": [{"uuid": "call-hook", "type": "call_webhook", "url": "%s", "result_name": "hook"}],
     "exits": [{"uuid": "ok", "destination_uuid": "done"}, {"uuid": "failed"}],
     "router": {"operand": "@results.hook.category",
       "cases": [{"uuid": "c-ok", "value": "success", "exit_uuid": "ok"}],
       "default_exit_uuid": "failed"}},
    {"uuid": "done", "actions": [{"uuid": "done-send", "type": "send_msg", "text": "scored"}], "exits": [{"uuid": "done-exit"}]}
  ]
}`

func newAgent(t *testing.T) (*Agent, *httptest.Server) {
	a, err := New(config.Config{
		StorageType:    config.STORAGE_TYPE_INMEM,
		ClusterConfig:  config.ClusterConfig{PartitionCount: 4},
		EngineConfig:   config.EngineConfig{PollInterval: 10 * time.Millisecond},
		WebhookConfig:  config.WebhookConfig{RetryInterval: 10 * time.Millisecond},
		DeliveryConfig: config.DeliveryConfig{Interval: 10 * time.Millisecond},
		FlowCacheTTL:   time.Minute,
	})
	require.NoError(t, err)
	a.startWorkers()
	srv := httptest.NewServer(a.httpServer.Handler)
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, a.Shutdown())
	})
	return a, srv
}

func post(t *testing.T, srv *httptest.Server, path string, body string) map[string]any {
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func liveState(t *testing.T, srv *httptest.Server, contact int) string {
	resp, err := http.Get(fmt.Sprintf("%s/contexts/1/%d", srv.URL, contact))
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ""
	}
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out["state"].(string)
}

func TestConversation(t *testing.T) {
	_, srv := newAgent(t)
	require.Equal(t, true, post(t, srv, "/flows", favoriteFlow)["published"])

	res := post(t, srv, "/messages", `{"organizationId": 1, "contactId": 7, "body": "Color"}`)
	require.Equal(t, "keyword", res["decision"])
	require.Equal(t, "favorite", res["flowUuid"])
	require.Equal(t, "waiting_message", liveState(t, srv, 7))

	res = post(t, srv, "/messages", `{"organizationId": 1, "contactId": 7, "body": "blue"}`)
	require.Equal(t, "resume", res["decision"])
	require.Equal(t, "", liveState(t, srv, 7))

	res = post(t, srv, "/messages", `{"organizationId": 1, "contactId": 7, "body": "anything"}`)
	require.Equal(t, "none", res["decision"])
}

func TestWebhookRoundTrip(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score": 10}`))
	}))
	defer hook.Close()
	_, srv := newAgent(t)
	require.Equal(t, true, post(t, srv, "/flows", fmt.Sprintf(scoreFlow, hook.URL))["published"])

	res := post(t, srv, "/messages", `{"organizationId": 1, "contactId": 9, "body": "score"}`)
	require.Equal(t, "keyword", res["decision"])
	require.Eventually(t, func() bool { return liveState(t, srv, 9) == "" }, 5*time.Second, 20*time.Millisecond)
}
