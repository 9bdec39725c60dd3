package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/outreach/internal/api/handler"
	mw "github.com/edvin/outreach/internal/api/middleware"
	"github.com/edvin/outreach/internal/config"
	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/health"
)

// Components are the collaborators the HTTP surface exposes.
type Components struct {
	Services   *core.Services
	Dispatcher handler.Dispatcher
	Health     handler.HealthChecker
	Audience   handler.AudiencePreviewer
	Previewer  handler.PlanPreviewer
	Thresholds health.Thresholds
}

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	c        Components
	corePool *pgxpool.Pool
	sourceDB *sql.DB
	cfg      *config.Config
	loc      *time.Location
}

func NewServer(logger zerolog.Logger, corePool *pgxpool.Pool, sourceDB *sql.DB, c Components, cfg *config.Config, loc *time.Location) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		c:        c,
		corePool: corePool,
		sourceDB: sourceDB,
		cfg:      cfg,
		loc:      loc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// External timer
	s.router.With(mw.CronAuth(s.cfg.CronSecret)).Post("/cron/dispatch", handler.NewDispatch(s.c.Dispatcher).Trigger)

	svc := s.c.Services
	s.router.Route("/api/v1", func(r chi.Router) {
		// Scheduler health and dashboard
		r.Get("/scheduler/health", handler.NewHealth(s.c.Health).Scheduler)
		r.Get("/dashboard/stats", handler.NewDashboard(svc.Dashboard, s.c.Thresholds).Stats)
		r.Get("/search", handler.NewSearch(svc.Search).Search)

		// Jobs
		job := handler.NewJob(svc.Jobs, svc.ExecutionLogs, s.loc)
		r.Get("/jobs", job.List)
		r.Get("/jobs/{id}", job.Get)
		r.Get("/jobs/{id}/logs", job.Logs)
		r.Post("/jobs/{id}/cancel", job.Cancel)

		// Execution timelines
		r.Get("/executions/{id}", handler.NewExecution(svc.ExecutionLogs).Get)

		// Workflows
		workflow := handler.NewWorkflow(svc.Workflows, svc.Scheduler, s.c.Previewer, s.loc)
		r.Get("/workflows/{id}", workflow.Get)
		r.Post("/workflows/{id}/schedule", workflow.Schedule)
		r.Put("/workflows/{id}/cron", workflow.SetCron)
		r.Post("/workflows/{id}/activate", workflow.Activate)
		r.Post("/workflows/{id}/pause", workflow.Pause)
		r.Post("/workflows/{id}/preview", workflow.Preview)

		// Target groups
		targetGroup := handler.NewTargetGroup(svc.TargetGroups, s.c.Audience)
		r.Get("/target-groups", targetGroup.List)
		r.Get("/target-groups/{id}", targetGroup.Get)
		r.Post("/target-groups/{id}/preview", targetGroup.Preview)

		// Mapping templates
		mappingTemplate := handler.NewMappingTemplate(svc.MappingTemplates)
		r.Get("/mapping-templates", mappingTemplate.List)
		r.Post("/mapping-templates", mappingTemplate.Create)
		r.Get("/mapping-templates/{id}", mappingTemplate.Get)
		r.Put("/mapping-templates/{id}/favorite", mappingTemplate.SetFavorite)
		r.Post("/mapping-templates/{id}/use", mappingTemplate.Use)
		r.Delete("/mapping-templates/{id}", mappingTemplate.Delete)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.corePool.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if err := s.sourceDB.PingContext(ctx); err != nil {
		checks["source_db"] = err.Error()
		healthy = false
	} else {
		checks["source_db"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
