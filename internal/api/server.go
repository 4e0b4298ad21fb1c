// Package api exposes the HTTP interface for the scrapewatch service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"scrapewatch/internal/metrics"
	"scrapewatch/internal/price"
	"scrapewatch/internal/scheduler"
	"scrapewatch/internal/scrape"
	"scrapewatch/internal/snapshot"
)

// Server wires HTTP handlers to the scheduler, snapshot store, and price
// monitor.
type Server struct {
	router    chi.Router
	scheduler *scheduler.Scheduler
	snapshots *snapshot.Store
	monitor   *price.Monitor
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sched *scheduler.Scheduler,
	snapshots *snapshot.Store,
	monitor *price.Monitor,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		scheduler: sched,
		snapshots: snapshots,
		monitor:   monitor,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/", s.createJob)
			r.Get("/overall", s.overallStatus)
			r.Get("/{job_id}/history", s.jobHistory)
			r.Post("/{job_id}/cancel", s.cancelJob)
		})
		r.Route("/prices", func(r chi.Router) {
			r.Get("/products", s.listProducts)
			r.Get("/summary", s.priceSummary)
			r.Get("/history.csv", s.priceHistoryCSV)
		})
		r.Route("/snapshots/{source_key}", func(r chi.Router) {
			r.Get("/labels", s.snapshotLabels)
			r.Get("/history", s.snapshotHistory)
			r.Get("/diff", s.snapshotDiff)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// In-memory dependencies are always ready.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.scheduler.Status()})
}

func (s *Server) overallStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.StatusOverall())
}

type createJobRequest struct {
	Name                string              `json:"name"`
	URL                 string              `json:"url"`
	SourceKey           string              `json:"source_key"`
	IntervalSeconds     int                 `json:"interval_seconds"`
	MaxRetries          int                 `json:"max_retries"`
	FetchTimeoutSeconds int                 `json:"fetch_timeout_seconds"`
	Headers             map[string]string   `json:"headers"`
	Selector            scrape.SelectorSpec `json:"selector"`
	NameField           string              `json:"name_field"`
	PriceField          string              `json:"price_field"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	var headers http.Header
	if len(req.Headers) > 0 {
		headers = make(http.Header, len(req.Headers))
		for k, v := range req.Headers {
			headers.Set(k, v)
		}
	}
	id, err := s.scheduler.Schedule(scheduler.JobDef{
		Name:         req.Name,
		URL:          req.URL,
		SourceKey:    req.SourceKey,
		Interval:     time.Duration(req.IntervalSeconds) * time.Second,
		MaxRetries:   req.MaxRetries,
		FetchTimeout: time.Duration(req.FetchTimeoutSeconds) * time.Second,
		Headers:      headers,
		Selector:     req.Selector,
		NameField:    req.NameField,
		PriceField:   req.PriceField,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) jobHistory(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	history, err := s.scheduler.History(jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "history": history})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.scheduler.Cancel(jobID); err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(scheduler.StateCancelled)})
}

func (s *Server) listProducts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"products": s.monitor.Products()})
}

func (s *Server) priceSummary(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product query parameter is required")
		return
	}
	summary, err := s.monitor.Summary(productID, r.URL.Query().Get("source"))
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no observations for product")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) priceHistoryCSV(w http.ResponseWriter, _ *http.Request) {
	out, err := s.monitor.ExportCSV()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="prices.csv"`)
	if _, err := w.Write([]byte(out)); err != nil {
		s.logger.Error("csv write failed", zap.Error(err))
	}
}

func (s *Server) snapshotLabels(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "source_key")
	labels := s.snapshots.Labels(key)
	if len(labels) == 0 {
		writeError(w, http.StatusNotFound, "no snapshots for source")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source_key": key, "labels": labels})
}

func (s *Server) snapshotHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "source_key")
	history, err := s.snapshots.History(key)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no snapshots for source")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source_key": key, "history": history})
}

func (s *Server) snapshotDiff(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "source_key")
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to query parameters are required")
		return
	}
	dr, err := s.snapshots.Compare(key, from, to)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot label not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dr)
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
