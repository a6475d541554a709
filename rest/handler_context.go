package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/persistence"
	"go.uber.org/zap"
)

func contactVars(r *http.Request) (int64, int64, error) {
	vars := mux.Vars(r)
	orgId, err := strconv.ParseInt(vars["org"], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	contactId, err := strconv.ParseInt(vars["contact"], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return orgId, contactId, nil
}

func (s *Server) HandleGetContext(w http.ResponseWriter, r *http.Request) {
	orgId, contactId, err := contactVars(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid organization or contact id")
		return
	}
	fc, err := s.storage.Contexts.GetLiveContext(r.Context(), orgId, contactId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "no active flow")
			return
		}
		logger.Error("error reading context", zap.Int64("contact", contactId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error reading context")
		return
	}
	respondWithJSON(w, http.StatusOK, fc)
}

func (s *Server) HandleListContexts(w http.ResponseWriter, r *http.Request) {
	orgId, contactId, err := contactVars(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid organization or contact id")
		return
	}
	contexts, err := s.storage.Contexts.ListContexts(r.Context(), orgId, contactId)
	if err != nil {
		logger.Error("error listing contexts", zap.Int64("contact", contactId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing contexts")
		return
	}
	respondWithJSON(w, http.StatusOK, contexts)
}
