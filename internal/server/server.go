package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/events"
	"github.com/earnzy/earnzy-push/internal/push"
	"github.com/earnzy/earnzy-push/internal/service"
	"github.com/earnzy/earnzy-push/internal/storage"
	"github.com/earnzy/earnzy-push/internal/token"
	"github.com/earnzy/earnzy-push/internal/tutorial"
)

const defaultListLimit = 50

type EventSource interface {
	Subscribe() (<-chan events.Event, func())
}

type Server struct {
	service    *service.PushService
	events     EventSource
	logger     *zap.Logger
	httpServer *http.Server
	router     chi.Router
}

func New(s *service.PushService, events EventSource, logger *zap.Logger) *Server {
	srv := &Server{service: s, events: events, logger: logger.Named("server")}
	srv.router = srv.setupRouter()
	return srv
}

func (s *Server) Start(addr string) error {
	s.logger.Info("Starting server", zap.String("addr", addr))
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/ping", s.handlePing)

		r.Post("/messages", s.handleIngestMessage)
		r.Post("/token", s.handleRefreshToken)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Delete("/{notificationID}", s.handleDismissNotification)
		})

		r.Get("/channels", s.handleListChannels)

		r.Route("/tutorial", func(r chi.Router) {
			r.Get("/", s.handleListTutorial)
			r.Get("/{index}", s.handleGetTutorialPage)
		})

		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}

func (s *Server) handleIngestMessage(w http.ResponseWriter, r *http.Request) {
	var msg push.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	id, err := s.service.Ingest(r.Context(), "http", &msg)
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("Error queueing message", zap.Error(err))
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	s.respond(w, r, map[string]string{"id": id, "status": "accepted"}, http.StatusAccepted)
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	err := s.service.RefreshToken(r.Context(), req.Token)
	switch {
	case err == nil:
		s.respond(w, r, map[string]string{"status": "registered"}, http.StatusOK)
	case errors.Is(err, token.ErrEmptyToken):
		http.Error(w, "token is required", http.StatusBadRequest)
	case errors.Is(err, token.ErrForwardFailed):
		s.logger.Warn("Token saved but not forwarded", zap.Error(err))
		http.Error(w, "Token saved, registration failed", http.StatusBadGateway)
	default:
		s.logger.Error("Error saving token", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	notifications, err := s.service.ListNotifications(r.Context(), limit)
	if err != nil {
		s.logger.Error("Error listing notifications", zap.Error(err))
		http.Error(w, "Error listing notifications", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []storage.Notification{}
	}
	s.respond(w, r, notifications, http.StatusOK)
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "notificationID"), 10, 32)
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}

	if err := s.service.DismissNotification(r.Context(), int32(id)); err != nil {
		if errors.Is(err, storage.Errors.NotFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		s.logger.Error("Error dismissing notification", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "Error dismissing notification", http.StatusInternalServerError)
		return
	}
	s.respond(w, r, nil, http.StatusNoContent)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.service.ListChannels(r.Context())
	if err != nil {
		s.logger.Error("Error listing channels", zap.Error(err))
		http.Error(w, "Error listing channels", http.StatusInternalServerError)
		return
	}
	if channels == nil {
		channels = []storage.Channel{}
	}
	s.respond(w, r, channels, http.StatusOK)
}

func (s *Server) handleListTutorial(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, tutorial.Pages(), http.StatusOK)
}

func (s *Server) handleGetTutorialPage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid page index", http.StatusBadRequest)
		return
	}

	page, err := tutorial.PageAt(index)
	if err != nil {
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	s.respond(w, r, page, http.StatusOK)
}

// MARK: Helpers
func (s *Server) respond(w http.ResponseWriter, r *http.Request, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("Error encoding response",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err))
		}
	}
}
