package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sheetdrop/apiserver/config"
	"github.com/sheetdrop/apiserver/internal/db"
	"github.com/sheetdrop/apiserver/internal/events"
	"github.com/sheetdrop/apiserver/internal/handlers"
	"github.com/sheetdrop/apiserver/internal/metrics"
	"github.com/sheetdrop/apiserver/internal/services"
	"github.com/sheetdrop/apiserver/internal/storage"
	"github.com/sheetdrop/apiserver/internal/store"
	"github.com/sheetdrop/apiserver/internal/token"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  *events.Publisher
}

// New constructs a Server with its dependencies wired from config.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(cfg.JWT.Keys, cfg.JWT.ActiveKID, time.Duration(cfg.JWT.TTLHours)*time.Hour)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	archive, err := storage.NewFromConfig(ctx, cfg.Archive)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if archive != nil {
		if err := archive.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("ensure archive bucket: %w", err)
		}
	}

	publisher, err := events.NewFromConfig(ctx, cfg.Events)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userService := services.NewUserService(store.NewUserRepository(dbConn))
	datasetService := services.NewDatasetService(
		store.NewDatasetRepository(dbConn),
		cfg.Upload,
		archive,
		publisher,
	)

	collector := metrics.NewCollector()
	authHandler := handlers.NewAuthHandler(userService, issuer)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", collector.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/upload", func(r chi.Router) {
		handlers.UploadRouter(r, datasetService, collector)
	})
	router.Route("/datasets", func(r chi.Router) {
		handlers.DatasetRouter(r, datasetService, authHandler.RequireAuth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	log.Printf("listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests, then closes the publisher and the
// database.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)

	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
