package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/webhook"
	"go.uber.org/zap"
)

type webhookCallbackRequest struct {
	Status int `json:"status"`
	Body   any `json:"body"`
}

// HandleWebhookCallback accepts a result for a call that answered 202.
// A missing status means the call succeeded.
func (s *Server) HandleWebhookCallback(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	var req webhookCallbackRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed webhook result")
		return
	}
	if req.Status == 0 {
		req.Status = http.StatusOK
	}
	if err := s.webhooks.Callback(r.Context(), token, req.Status, req.Body); err != nil {
		if errors.Is(err, webhook.ErrUnknownToken) {
			respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("error delivering webhook result", zap.String("token", token), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error delivering webhook result")
		return
	}
	respondOK(w, map[string]any{"accepted": true})
}
