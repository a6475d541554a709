package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/shard"
	"go.uber.org/zap"
)

func (s *Server) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var msg model.Message
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed message")
		return
	}
	res, err := s.dispatcher.Dispatch(r.Context(), &msg)
	if err != nil {
		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, shard.ErrPartitionNotOwned):
			respondWithError(w, http.StatusServiceUnavailable, err.Error())
		default:
			logger.Error("error dispatching message", zap.Int64("organization", msg.OrganizationId), zap.Int64("contact", msg.ContactId), zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "error dispatching message")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}
