package internal

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"time"

	"device-inventory-api/internal/auth"
	"device-inventory-api/internal/config"
	"device-inventory-api/internal/handlers"
	"device-inventory-api/internal/models"
	"device-inventory-api/internal/registry"
	"device-inventory-api/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

//go:embed openapi
var openapiFS embed.FS

type Server struct {
	Store      store.Store
	Registry   *registry.Registry
	Lookup     *registry.Lookup
	Router     *chi.Mux
	JWTManager *auth.JWTManager
	Metrics    *Metrics
	Logger     zerolog.Logger

	cfg *config.Config
}

// NewServer wires the registry, auth and routes over st.
func NewServer(cfg *config.Config, st store.Store, logger zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)
	if err := jwtManager.ValidateConfig(); err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	reg := registry.New(st,
		registry.WithLogger(logger.With().Str("component", "registry").Logger()),
		registry.WithRecorder(metrics),
	)

	s := &Server{
		Store:      st,
		Registry:   reg,
		Lookup:     registry.NewLookup(st, logger.With().Str("component", "lookup").Logger()),
		Router:     chi.NewRouter(),
		JWTManager: jwtManager,
		Metrics:    metrics,
		Logger:     logger,
		cfg:        cfg,
	}

	// chi requires every middleware before the first route
	s.Router.Use(RequestID)
	s.Router.Use(RequestLogger(logger.With().Str("component", "http").Logger()))
	s.Router.Use(Recoverer)
	if cfg.EnableMetrics {
		s.Router.Use(s.Metrics.Middleware())
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	s.Router.Get("/dbping", s.dbPing)

	// Public auth routes (no JWT required)
	s.Router.Post("/auth/login", s.loginUser)
	s.Router.Post("/auth/register", s.registerUser)
	s.mountDocs(s.Router)

	s.Router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(s.JWTManager))
		s.mountProtectedRoutes(r)
	})

	return s, nil
}

// Close releases the store
func (s *Server) Close(ctx context.Context) error {
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}

func (s *Server) dbPing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("store ping failed")
		sendErrorResponse(w, "db: unavailable", "DB_UNAVAILABLE", http.StatusServiceUnavailable)
		return
	}
	if _, err := w.Write([]byte("db: ok")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// mountDocs serves the OpenAPI spec and Swagger UI
func (s *Server) mountDocs(mux *chi.Mux) {
	if !s.cfg.EnableSwagger {
		return
	}

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			http.Error(w, "Failed to read OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		if _, err := w.Write(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Device Inventory API - Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
    <style>
        body { margin: 0; background: #f7f7f7; }
        .swagger-ui .topbar { background: #1f2937; border-bottom: 3px solid #3b82f6; }
        .swagger-ui .topbar .download-url-wrapper { display: none; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/openapi.yaml',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis],
                tryItOutEnabled: true
            });
        };
    </script>
</body>
</html>`))
	})
}

// mountProtectedRoutes mounts all protected routes that require authentication
func (s *Server) mountProtectedRoutes(r chi.Router) {
	// The token role is checked first, then the account behind it
	admin := []func(http.Handler) http.Handler{
		auth.MustRole(models.RoleAdmin),
		s.requireStoredRole(models.RoleAdmin),
	}

	// Self-service
	r.Get("/auth/me", s.getUserProfile)
	r.Put("/auth/me", s.updateUserProfile)
	r.Put("/auth/change-password", s.changePassword)

	// Devices - any signed-in user may list and create, only admins edit
	r.Get("/devices", s.listDevices)
	r.Get("/devices/options", s.getDeviceOptions)
	r.Get("/devices/{uid}", s.getDevice)
	r.Post("/devices", s.createDevice)
	r.With(admin...).Put("/devices/{uid}", s.updateDevice)
	r.With(admin...).Delete("/devices/{uid}", s.deleteDevice)

	// Audit log
	r.With(admin...).Get("/logs", s.listLogs)

	// User management
	r.With(admin...).Post("/users", s.createUser)
	r.With(admin...).Get("/users", s.listUsers)
	r.With(admin...).Get("/users/{id}", s.getUser)
	r.With(admin...).Put("/users/{id}", s.updateUser)
	r.With(admin...).Delete("/users/{id}", s.deleteUser)

	// Excel import
	importsHandler := handlers.NewImportsHandler(s.Registry, s.Metrics)
	if s.cfg.ImportMapping != "" {
		importsHandler.DefaultMap = s.cfg.ImportMapping
	}
	r.With(admin...).Post("/imports/excel", importsHandler.UploadExcel)
}
