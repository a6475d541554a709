package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/convoflow/flow"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"go.uber.org/zap"
)

type validationErrorResponse struct {
	Node    string `json:"node,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (s *Server) HandlePublishFlow(w http.ResponseWriter, r *http.Request) {
	var doc model.FlowDocument
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed flow document")
		return
	}
	fl, err := s.publisher.Publish(r.Context(), &doc)
	if err != nil {
		var verrs flow.ValidationErrors
		if errors.As(err, &verrs) {
			out := make([]validationErrorResponse, 0, len(verrs))
			for _, e := range verrs {
				out = append(out, validationErrorResponse{Node: e.NodeUuid, Field: e.Field, Message: e.Message})
			}
			respondWithJSON(w, http.StatusBadRequest, map[string]any{"published": false, "errors": out})
			return
		}
		logger.Error("error publishing flow", zap.String("flow", doc.Uuid), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error publishing flow")
		return
	}
	respondOK(w, map[string]any{"published": true, "uuid": fl.Uuid(), "status": fl.Status()})
}

func (s *Server) HandleGetFlowCounts(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orgId, err := strconv.ParseInt(vars["org"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid organization id")
		return
	}
	counts, err := s.storage.Counts.GetCounts(r.Context(), orgId, vars["uuid"])
	if err != nil {
		logger.Error("error reading flow counts", zap.String("flow", vars["uuid"]), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error reading flow counts")
		return
	}
	respondWithJSON(w, http.StatusOK, counts)
}
