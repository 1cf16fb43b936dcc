// Package server exposes the download pipeline, login and task queue as a
// small JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/jmagar/cloudie-cli/internal/download"
)

// Options wires a Server.
type Options struct {
	Downloader trackDownloader
	Login      loginProvider
	Tasks      taskQueue
	// OnToken persists a token captured by POST /api/login.
	OnToken func(token string) error
	Log     zerolog.Logger
}

// Server handles the HTTP API.
type Server struct {
	downloader trackDownloader
	login      loginProvider
	tasks      taskQueue
	onToken    func(string) error
	log        zerolog.Logger
	router     *mux.Router

	// baseCtx bounds background queue runs started by handlers.
	baseCtx context.Context
	queueWG sync.WaitGroup
}

// New builds the router.
func New(ctx context.Context, opts Options) *Server {
	s := &Server{
		downloader: opts.Downloader,
		login:      opts.Login,
		tasks:      opts.Tasks,
		onToken:    opts.OnToken,
		log:        opts.Log,
		baseCtx:    ctx,
	}
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/download", s.handleDownload).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskID}/resume", s.handleResumeTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID}", s.handleDeleteTask).Methods(http.MethodDelete)
	r.Use(s.logRequests)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status_code", rec.status).Dur("duration", time.Since(start)).Msg("http request")
	})
}

// startQueue runs the task queue in the background. A run already in
// progress picks up the resumed task by itself.
func (s *Server) startQueue() {
	if s.tasks == nil {
		return
	}
	s.queueWG.Add(1)
	go func() {
		defer s.queueWG.Done()
		if err := s.tasks.Run(s.baseCtx); err != nil && !errors.Is(err, download.ErrQueueRunning) && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("queue run failed")
		}
	}()
}

// Wait blocks until background queue runs have returned.
func (s *Server) Wait() {
	s.queueWG.Wait()
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.Wait()
		return nil
	}
}
