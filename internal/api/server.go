// Package api provides the REST surface of the platform: auth, project
// and task CRUD, agent execution, uploads, activity, presence, and the
// Figma proxy, plus the WebSocket upgrade endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/collabhq/collabd/internal/agent"
	"github.com/collabhq/collabd/internal/auth"
	"github.com/collabhq/collabd/internal/config"
	"github.com/collabhq/collabd/internal/db"
	"github.com/collabhq/collabd/internal/events"
	"github.com/collabhq/collabd/internal/figma"
	"github.com/collabhq/collabd/internal/relay"
	"github.com/collabhq/collabd/internal/upload"
)

// Version reported by the health endpoint.
const Version = "2.0.0"

// Server is the platform API server.
type Server struct {
	cfg       *config.Config
	db        *db.AppDB
	tokens    *auth.Manager
	responder *agent.Responder
	relay     *relay.Relay
	uploads   *upload.Store
	figma     *figma.Client
	publisher events.Publisher
	mux       *http.ServeMux
	logger    *slog.Logger
}

// New wires the server and all its services.
func New(cfg *config.Config, adb *db.AppDB, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	publisher := events.NewMemoryPublisher()
	responder := agent.NewResponder(adb, logger)

	uploads, err := upload.NewStore(adb, cfg.Upload.Dir, cfg.Upload.MaxFileSize, cfg.Upload.MaxFiles, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		db:        adb,
		tokens:    tokens,
		responder: responder,
		relay:     relay.NewRelay(adb, tokens, responder, publisher, logger, cfg.AIDelay),
		uploads:   uploads,
		figma:     figma.NewClient(cfg.FigmaBaseURL),
		publisher: publisher,
		mux:       http.NewServeMux(),
		logger:    logger,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// CORS middleware wrapper
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}

	// Health check
	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))

	// Authentication
	s.mux.HandleFunc("POST /api/auth/register", cors(s.handleRegister))
	s.mux.HandleFunc("POST /api/auth/login", cors(s.handleLogin))
	s.mux.HandleFunc("GET /api/users/profile", cors(s.requireAuth(s.handleProfile)))

	// Projects
	s.mux.HandleFunc("GET /api/projects", cors(s.requireAuth(s.handleListProjects)))
	s.mux.HandleFunc("POST /api/projects", cors(s.requireAuth(s.handleCreateProject)))
	s.mux.HandleFunc("GET /api/projects/{id}", cors(s.requireAuth(s.requireProjectAccess(s.handleGetProject))))
	s.mux.HandleFunc("GET /api/projects/{id}/collaborators", cors(s.requireAuth(s.requireProjectAccess(s.handleListCollaborators))))
	s.mux.HandleFunc("POST /api/projects/{id}/collaborators", cors(s.requireAuth(s.requireProjectAccess(s.handleAddCollaborator))))
	s.mux.HandleFunc("GET /api/projects/{id}/users", cors(s.requireAuth(s.requireProjectAccess(s.handleProjectUsers))))
	s.mux.HandleFunc("GET /api/projects/{id}/activity", cors(s.requireAuth(s.requireProjectAccess(s.handleProjectActivity))))
	s.mux.HandleFunc("GET /api/projects/{id}/files", cors(s.requireAuth(s.requireProjectAccess(s.handleProjectFiles))))

	// Tasks
	s.mux.HandleFunc("GET /api/projects/{id}/tasks", cors(s.requireAuth(s.requireProjectAccess(s.handleListTasks))))
	s.mux.HandleFunc("POST /api/projects/{id}/tasks", cors(s.requireAuth(s.requireProjectAccess(s.handleCreateTask))))
	s.mux.HandleFunc("PATCH /api/tasks/{id}", cors(s.requireAuth(s.handleUpdateTask)))
	s.mux.HandleFunc("DELETE /api/tasks/{id}", cors(s.requireAuth(s.handleDeleteTask)))

	// AI agents
	s.mux.HandleFunc("GET /api/agents", cors(s.requireAuth(s.handleListAgents)))
	s.mux.HandleFunc("GET /api/agents/{agentId}", cors(s.requireAuth(s.handleGetAgent)))
	s.mux.HandleFunc("GET /api/agents/{agentId}/stats", cors(s.requireAuth(s.handleAgentStats)))
	s.mux.HandleFunc("POST /api/agents/{agentId}/execute", cors(s.requireAuth(s.handleExecuteAgent)))
	s.mux.HandleFunc("GET /api/executions", cors(s.requireAuth(s.handleListExecutions)))

	// File uploads
	s.mux.HandleFunc("POST /api/upload", cors(s.requireAuth(s.handleUpload)))
	s.mux.HandleFunc("GET /api/files/{fileId}", cors(s.handleGetFile))
	s.mux.HandleFunc("DELETE /api/files/{fileId}", cors(s.requireAuth(s.handleDeleteFile)))

	// Figma proxy
	s.mux.HandleFunc("POST /api/figma/layers", cors(s.requireAuth(s.handleFigmaLayers)))
	s.mux.HandleFunc("POST /api/figma/image", cors(s.requireAuth(s.handleFigmaImage)))

	// WebSocket endpoint (no CORS wrapper, the upgrader handles origin)
	s.mux.Handle("GET /ws", s.relay)
}

// Handler returns the root handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Relay exposes the realtime relay.
func (s *Server) Relay() *relay.Relay {
	return s.relay
}

// Publisher exposes the event publisher for out-of-band publishing.
func (s *Server) Publisher() events.Publisher {
	return s.publisher
}

// Uploads exposes the upload store for maintenance jobs.
func (s *Server) Uploads() *upload.Store {
	return s.uploads
}

// Start starts the API server without graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.cfg.Addr)
	return http.ListenAndServe(s.cfg.Addr, s.Handler())
}

// StartContext starts the API server and shuts it down when the context
// is cancelled.
func (s *Server) StartContext(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", s.cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		s.relay.Close()
		s.publisher.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// Close releases server resources without serving.
func (s *Server) Close() {
	s.relay.Close()
	s.publisher.Close()
}
