package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"triplecheck/internal/platform/metrics"
	"triplecheck/internal/platform/middleware"
	"triplecheck/internal/validation/models"
	"triplecheck/internal/validation/schema"
	"triplecheck/internal/validation/service"
	"triplecheck/pkg/platform/httputil"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

// Service defines the validation operations the HTTP layer needs.
type Service interface {
	Validate(ctx context.Context, sub models.Submission) *models.Report
	ValidateBatch(ctx context.Context, subs []models.Submission) models.BatchSummary
	Report(ctx context.Context, validationID string) (*models.Report, error)
	Recent(ctx context.Context, limit int) ([]*models.Report, error)
	Stats() service.Stats
	Registry() *schema.Registry
}

// Handler wires the validation endpoints to the engine.
type Handler struct {
	service        Service
	logger         *slog.Logger
	metrics        *metrics.Metrics
	requestTimeout time.Duration
	limiter        func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit throttles every /v1 route with mw.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.limiter = mw
	}
}

// New constructs a validation handler. requestTimeout bounds each request
// and must outlast the engine's batch deadline.
func New(svc Service, logger *slog.Logger, m *metrics.Metrics, requestTimeout time.Duration, opts ...Option) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	h := &Handler{
		service:        svc,
		logger:         logger,
		metrics:        m,
		requestTimeout: requestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the validation endpoints under /v1.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(v1 chi.Router) {
		if h.limiter != nil {
			v1.Use(h.limiter)
		}
		v1.Use(middleware.Timeout(h.requestTimeout))
		v1.Use(middleware.ContentTypeJSON)
		v1.Use(middleware.LatencyMiddleware(h.metrics))
		v1.Post("/validate", h.HandleValidate)
		v1.Post("/validate/batch", h.HandleValidateBatch)
		v1.Get("/reports", h.HandleRecent)
		v1.Get("/reports/{id}", h.HandleGetReport)
		v1.Get("/status", h.HandleStatus)
	})
}

// HandleValidate handles POST /v1/validate.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ValidateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	report := h.service.Validate(ctx, req.Submission())
	h.logger.InfoContext(ctx, "validation served",
		"request_id", requestID,
		"validation_id", report.ValidationID,
		"status", report.OverallStatus,
	)
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleValidateBatch handles POST /v1/validate/batch.
func (h *Handler) HandleValidateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	summary := h.service.ValidateBatch(ctx, req.submissions())
	h.logger.InfoContext(ctx, "batch served",
		"request_id", requestID,
		"total", summary.Total,
		"passed", summary.Passed,
	)
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// HandleGetReport handles GET /v1/reports/{id}.
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	report, err := h.service.Report(ctx, id)
	if err != nil {
		h.logger.InfoContext(ctx, "report lookup failed",
			"request_id", middleware.GetRequestID(ctx),
			"validation_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleRecent handles GET /v1/reports?limit=n.
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentLimit {
			httputil.WriteError(w, httputil.NewError(httputil.CodeValidation, "limit must be between 1 and %d", maxRecentLimit))
			return
		}
		limit = n
	}

	reports, err := h.service.Recent(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing reports failed", "request_id", middleware.GetRequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	httputil.WriteJSON(w, http.StatusOK, RecentResponse{Reports: reports})
}

// HandleStatus handles GET /v1/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	registry := h.service.Registry()
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Stats:     h.service.Stats(),
		DataTypes: registry.Types(),
		Fallback:  registry.Fallback(),
	})
}
