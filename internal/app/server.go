package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/fincontexta/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/fincontexta/internal/api/middlewares"
	"github.com/markdave123-py/fincontexta/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, docs handlers.DocumentService, retriever handlers.Retriever) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, docs, retriever),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// NewRouter registers the public health check and the authenticated API.
func NewRouter(cfg *config.Config, docs handlers.DocumentService, retriever handlers.Retriever) http.Handler {
	docHandler := handlers.NewDocumentHandler(docs)
	retrievalHandler := handlers.NewRetrievalHandler(retriever)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Get("/documents", docHandler.GetDocuments)
			protected.Get("/jobs", docHandler.GetJobs)
			protected.Get("/jobs/{jobID}", docHandler.GetJob)
			protected.Post("/jobs/{jobID}/retry", docHandler.RetryJob)
			protected.Post("/retrieve", retrievalHandler.RetrieveChunks)
		})
	})

	return r
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
