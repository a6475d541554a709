package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/convoflow/dispatch"
	"github.com/mohitkumar/convoflow/flow"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"go.uber.org/zap"
)

type MessageDispatcher interface {
	Dispatch(ctx context.Context, msg *model.Message) (*dispatch.Result, error)
}

type FlowPublisher interface {
	Publish(ctx context.Context, doc *model.FlowDocument) (*flow.Flow, error)
}

type WebhookCallback interface {
	Callback(ctx context.Context, token string, status int, body any) error
}

type Server struct {
	http.Server
	Port       int
	dispatcher MessageDispatcher
	publisher  FlowPublisher
	webhooks   WebhookCallback
	storage    *persistence.Storage
}

func NewServer(httpPort int, dispatcher MessageDispatcher, publisher FlowPublisher, webhooks WebhookCallback, storage *persistence.Storage) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		dispatcher: dispatcher,
		publisher:  publisher,
		webhooks:   webhooks,
		storage:    storage,
		Port:       httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/messages", s.HandleMessage).Methods(http.MethodPost)

	router.HandleFunc("/flows", s.HandlePublishFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows/{org}/{uuid}/counts", s.HandleGetFlowCounts).Methods(http.MethodGet)

	router.HandleFunc("/webhooks/{token}", s.HandleWebhookCallback).Methods(http.MethodPost)

	router.HandleFunc("/contexts/{org}/{contact}", s.HandleGetContext).Methods(http.MethodGet)
	router.HandleFunc("/contexts/{org}/{contact}/history", s.HandleListContexts).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug(r.RequestURI, zap.String("method", r.Method))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
