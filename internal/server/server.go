// Package server is a self-contained support backend speaking the same REST
// and socket contract as the production service. It backs local development
// of the widget and console front-ends and the end-to-end tests.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	ListenAddr    string
	AdminName     string
	AdminEmail    string
	AdminPassword string
	Secret        string

	// DataPath enables the pebble log; empty keeps everything in memory.
	DataPath string

	// RedisAddr switches room fan-out to Redis pub/sub for multi-instance
	// deployments; empty uses the in-process hub directly.
	RedisAddr string
	RedisPass string

	QueueSize  int
	MaxWorkers int

	Logger zerolog.Logger
}

type Server struct {
	config    Config
	store     *Store
	hub       *Hub
	publisher Publisher
	socket    *SocketHandler
	queue     *RequestQueueManager
	auth      *authenticator
	metrics   *metrics
	persist   *Persist
	logger    zerolog.Logger

	httpServer *http.Server
}

func New(config Config) (*Server, error) {
	if config.Secret == "" {
		return nil, errors.New("server: admin secret is required")
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 10
	}

	logger := config.Logger

	store := NewStore()
	store.SetLogger(logger)
	var persist *Persist
	if config.DataPath != "" {
		p, err := OpenPersist(config.DataPath)
		if err != nil {
			return nil, err
		}
		if err := store.AttachPersist(p); err != nil {
			_ = p.Close()
			return nil, err
		}
		persist = p
	}

	if _, err := store.SeedAdmin(config.AdminName, config.AdminEmail, config.AdminPassword); err != nil {
		return nil, err
	}

	queue := NewRequestQueueManager(config.QueueSize, config.MaxWorkers, logger)
	m := newMetrics(queue)

	hub := NewHub(logger, m)
	go hub.Run()

	var publisher Publisher
	if config.RedisAddr != "" {
		publisher = newRedisPublisher(config.RedisAddr, config.RedisPass, hub, logger)
	} else {
		publisher = newLocalPublisher(hub)
	}

	s := &Server{
		config:    config,
		store:     store,
		hub:       hub,
		publisher: publisher,
		queue:     queue,
		auth:      newAuthenticator(config.Secret, store),
		metrics:   m,
		persist:   persist,
		logger:    logger,
	}
	s.socket = NewSocketHandler(hub, store, publisher, logger)
	return s, nil
}

// MakeHTTPHandleFunc adapts an apiFunc into a routed handler: the request is
// funneled through the queue, errors become JSON bodies, and CORS plus the
// access log wrap the result.
func (s *Server) MakeHTTPHandleFunc(f apiFunc, authMiddleware ...Middleware) http.HandlerFunc {
	corsConfig := CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "OPTIONS", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With", "Authorization"},
		AllowCredentials: true,
	}

	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)

		job := Job{
			Fn: func() error {
				return f(w, r)
			},
			Errc: errc,
		}

		s.queue.EnqueueJob(job)

		err := <-errc
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				s.logger.Warn().Err(httpErr.ErrorLog).Int("status", httpErr.StatusCode).Msg(httpErr.Message)
				WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message})
			} else {
				s.logger.Error().Err(err).Msg("unhandled endpoint error")
				WriteJSON(w, http.StatusInternalServerError, ApiError{Error: "Internal server error"})
			}
		}
	}

	finalHandler := func(w http.ResponseWriter, r *http.Request) {
		if len(authMiddleware) > 0 {
			authHandler := baseHandler
			for _, m := range authMiddleware {
				authHandler = m(authHandler)
			}
			authHandler(w, r)
			return
		}
		baseHandler(w, r)
	}

	return Chain(finalHandler, CORS(corsConfig), Logging(s.logger))
}

// Handler builds the full route tree. Tests mount it on httptest.Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return s.metrics.instrument(mux)
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.Handler(),
	}

	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("support server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
	}

	s.queue.Shutdown()
	s.hub.Stop()
	_ = s.publisher.Close()
	if s.persist != nil {
		return s.persist.Close()
	}
	return nil
}
