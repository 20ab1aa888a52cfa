// Package server provides the HTTP REST API for the transcription service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/reson/transcription-service/internal/cleanup"
	"github.com/reson/transcription-service/internal/config"
	"github.com/reson/transcription-service/internal/engine"
	"github.com/reson/transcription-service/internal/entitystore"
	"github.com/reson/transcription-service/internal/poller"
	"github.com/reson/transcription-service/internal/server/ratelimit"
	"github.com/reson/transcription-service/internal/sns"
)

// Engine is the transcription engine slice the handlers need.
type Engine interface {
	Start(ctx context.Context, in engine.StartInput) (*engine.Job, error)
	Status(ctx context.Context, actualJobName string) (*engine.Job, error)
	Delete(ctx context.Context, actualJobName string) error
}

// JobPoller drives a started job to a terminal state.
type JobPoller interface {
	Poll(ctx context.Context, actualJobName string, cb poller.Callbacks) (*engine.Job, error)
}

// ObjectStore issues presigned URLs and deletes objects.
type ObjectStore interface {
	PresignUpload(ctx context.Context, folder, contentType string) (url, key string, err error)
	PresignDownload(ctx context.Context, folder, key string) (string, error)
	Delete(ctx context.Context, folder, key string) error
}

// EntityStore is the entity lookup slice used for webhook correlation.
type EntityStore interface {
	ListQuestionsByJob(ctx context.Context, jobID string) ([]entitystore.Question, error)
	ListAnswersByJob(ctx context.Context, jobID string) ([]entitystore.Answer, error)
}

// Persister fetches and saves transcripts.
type Persister interface {
	FetchAndExtractTranscript(ctx context.Context, keyBase, folder string) (string, bool)
	SaveTranscript(ctx context.Context, text string, entityType entitystore.EntityType, entityID int64) bool
}

// Verifier authenticates notification messages.
type Verifier interface {
	Verify(ctx context.Context, m *sns.Message) error
}

// Sweeper runs retention sweeps.
type Sweeper interface {
	SweepOlderThan(ctx context.Context, retentionDays int) (*cleanup.Result, error)
}

// Deps bundles the collaborators the server is built from.
type Deps struct {
	Engine     Engine
	Poller     JobPoller
	Objects    ObjectStore
	Entities   EntityStore
	Persister  Persister
	Verifier   Verifier
	Sweeper    Sweeper
	HTTPClient *http.Client // used for subscription confirmation fetches
}

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	cfg         *config.Config
	rateLimiter *ratelimit.Limiter

	engine     Engine
	poller     JobPoller
	objects    ObjectStore
	entities   EntityStore
	persister  Persister
	verifier   Verifier
	sweeper    Sweeper
	httpClient *http.Client

	// background tracks per-job watch goroutines so shutdown can wait for
	// in-flight persistence to finish.
	background sync.WaitGroup
}

// New creates a new server instance.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:        cfg,
		engine:     deps.Engine,
		poller:     deps.Poller,
		objects:    deps.Objects,
		entities:   deps.Entities,
		persister:  deps.Persister,
		verifier:   deps.Verifier,
		sweeper:    deps.Sweeper,
		httpClient: deps.HTTPClient,
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/transcribe", s.handleStartTranscription)
	mux.HandleFunc("GET /api/transcribe/status", s.handleTranscriptionStatus)
	mux.HandleFunc("GET /api/transcribe/delete", s.handleDeleteTranscription)
	mux.HandleFunc("POST /api/transcribe/stream", s.handleStreamTranscription)
	mux.HandleFunc("POST /api/transcribe/webhook", s.handleWebhook)
	mux.HandleFunc("POST /api/transcribe/cleanup", s.handleCleanup)

	mux.HandleFunc("GET /api/upload", s.handleUploadURL)
	mux.HandleFunc("GET /api/download", s.handleDownloadURL)
	mux.HandleFunc("GET /api/delete", s.handleDeleteObject)

	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Start begins listening for requests and blocks until shutdown.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	// Let running job watchers finish their persistence step.
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Println("Timed out waiting for background job watchers")
	}

	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
		}
		if !allowed {
			if info.RetryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
			}
			log.Printf("[rate-limit] %s exceeded budget for %s %s", clientID, r.Method, r.URL.Path)
			s.errorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractClientID identifies the client by IP address.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"status": "false", "message": message})
}
