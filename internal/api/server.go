package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/david/subsidy-matcher/internal/audit"
	"github.com/david/subsidy-matcher/internal/catalog"
	"github.com/david/subsidy-matcher/internal/config"
	"github.com/david/subsidy-matcher/internal/db"
	"github.com/david/subsidy-matcher/internal/matching"
	"github.com/david/subsidy-matcher/internal/models"
)

type Server struct {
	Echo     *echo.Echo
	Pipeline *matching.Pipeline
	Store    *db.Store
	Catalog  *catalog.Cache
	Log      *zap.Logger
	Config   config.ServerConfig

	auditor *audit.Auditor

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(pipeline *matching.Pipeline, store *db.Store, cache *catalog.Cache, cfg config.ServerConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Echo:     e,
		Pipeline: pipeline,
		Store:    store,
		Catalog:  cache,
		Log:      log,
		Config:   cfg,
	}

	// Audits measure the deterministic rules, so they run on a copy of the
	// pipeline with refinement off and no compliance writes for synthetic
	// traffic.
	auditPipeline := *pipeline
	auditPipeline.Refiner = nil
	auditPipeline.Config.AIEnabled = false
	auditPipeline.Compliance = nil
	s.auditor = audit.NewAuditor(&auditPipeline, log.Named("audit"))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.Echo.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.POST("/match", s.handleComputeMatches)
	api.GET("/subsidies", s.handleListSubsidies)
	api.GET("/subsidies/:id", s.handleGetSubsidy)
	api.GET("/stats", s.handleGetStats)

	// Admin routes (catalog import, audits)
	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/catalog/import", s.handleImportCatalog)
	admin.POST("/admin/bias-audit", s.handleStartBiasAudit)
	admin.GET("/admin/job/:id", s.handleJobStatus)
	admin.GET("/admin/audits", s.handleRecentAudits)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type matchRequest struct {
	Profile models.CompanyProfile `json:"profile"`
	Limit   int                   `json:"limit"`
}

// handleComputeMatches serves one matching call. Provider trouble never
// reaches this layer as an error: the pipeline degrades to heuristic
// results and reports the reason inside the response body.
func (s *Server) handleComputeMatches(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.Pipeline.ComputeMatches(c.Request().Context(), req.Profile, req.Limit)
	if err != nil {
		s.Log.Error("match computation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListSubsidies(c echo.Context) error {
	limit := 20
	offset := 0
	var minAmount float64

	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}
	if v, err := strconv.ParseFloat(c.QueryParam("min_amount"), 64); err == nil && v > 0 {
		minAmount = v
	}
	activeOnly := !strings.EqualFold(c.QueryParam("include_inactive"), "true")

	result, err := s.Store.ListSubsidies(c.Request().Context(), db.ListParams{
		Query:      c.QueryParam("q"),
		Region:     c.QueryParam("region"),
		Sector:     c.QueryParam("sector"),
		Funder:     c.QueryParam("funder"),
		ActiveOnly: activeOnly,
		MinAmount:  minAmount,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.Log.Error("failed to list subsidies", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetSubsidy(c echo.Context) error {
	id := c.Param("id")
	subsidy, err := s.Store.GetSubsidy(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, subsidy)
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.Store.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

// handleImportCatalog ingests a provider feed posted as a JSON array. With
// prune=true, active rows missing from the feed are retired afterwards.
func (s *Server) handleImportCatalog(c echo.Context) error {
	var entries []catalog.RawSubsidy
	if err := c.Bind(&entries); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Body must be a JSON array of feed entries"})
	}
	if len(entries) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Empty feed"})
	}

	ctx := c.Request().Context()
	imported := 0
	skipped := 0
	var keep []string

	for _, raw := range entries {
		candidate, err := catalog.Normalize(raw)
		if err != nil {
			skipped++
			s.Log.Warn("skipping feed entry", zap.Error(err))
			continue
		}
		if err := s.Store.UpsertSubsidy(ctx, candidate); err != nil {
			s.Log.Error("upsert failed", zap.String("id", candidate.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		imported++
		keep = append(keep, candidate.ID)
	}

	var deactivated int64
	if strings.EqualFold(c.QueryParam("prune"), "true") && len(keep) > 0 {
		n, err := s.Store.DeactivateExcept(ctx, keep)
		if err != nil {
			s.Log.Error("prune failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		deactivated = n
	}

	if s.Catalog != nil {
		if err := s.Catalog.Invalidate(ctx); err != nil {
			s.Log.Warn("catalog cache invalidation failed", zap.Error(err))
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Catalog import complete",
		"imported":    imported,
		"skipped":     skipped,
		"deactivated": deactivated,
	})
}

func (s *Server) handleStartBiasAudit(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "An audit job is already running",
			"job_id": job.ID,
		})
	}

	seed := int64(1)
	if raw := strings.TrimSpace(c.QueryParam("seed")); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			seed = parsed
		}
	}
	profiles := 120
	if raw := strings.TrimSpace(c.QueryParam("profiles")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 5000 {
			profiles = parsed
		}
	}

	// context.WithoutCancel detaches from the HTTP lifecycle but preserves
	// trace values. We add our own timeout for safety.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 10*time.Minute,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	// Run in background goroutine; return 202 immediately.
	go func() {
		defer jobCancel()

		report, err := s.auditor.Run(jobCtx, seed, profiles)
		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			s.Log.Error("bias audit job failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		job.Status = "completed"
		job.Result = report
		s.Log.Info("bias audit job completed",
			zap.String("job_id", jobID),
			zap.Int("findings", len(report.Findings)))
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Bias audit started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecentAudits(c echo.Context) error {
	limit := 20
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}
	audits, err := s.Store.RecentAudits(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if audits == nil {
		audits = []db.AuditSummary{}
	}
	return c.JSON(http.StatusOK, audits)
}

func (s *Server) Start(port int) error {
	return s.Echo.Start(fmt.Sprintf(":%d", port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := s.adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		// Check X-Admin-Secret header or Bearer token
		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func (s *Server) adminSecret() (string, error) {
	if s.Config.AdminSecret != "" {
		return s.Config.AdminSecret, nil
	}

	adminSecretOnce.Do(func() {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate admin secret fallback: %w", err)
			return
		}
		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		s.Log.Warn("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}
	return adminSecretRuntime, nil
}
