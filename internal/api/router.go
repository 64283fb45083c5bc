// Package api exposes search over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/search"
)

const maxRequestBodySize = 1 << 20

// Searcher answers search requests.
type Searcher interface {
	Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error)
}

// StatusReader returns the latest enrichment status of an entity.
type StatusReader interface {
	GetStatus(ctx context.Context, entityID string) (*model.EnrichmentStatus, error)
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
}

// NewRouter returns the HTTP handler for the search API.
func NewRouter(searcher Searcher, statuses StatusReader, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth(statuses))
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", handleSearch(searcher))
		if statuses != nil {
			r.Get("/entities/{id}/status", handleStatus(statuses))
		}
	})
	return r
}

func handleHealth(statuses StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if statuses != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := statuses.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleSearch(searcher Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req model.SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, req, "invalid request body")
			return
		}

		resp, err := searcher.Search(r.Context(), req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, resp)
		case errors.Is(err, search.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, req, "query is required")
		case errors.Is(err, search.ErrTimeout):
			writeError(w, http.StatusGatewayTimeout, req, "search timed out")
		default:
			zap.L().Error("api: search failed", zap.String("query", req.Query), zap.Error(err))
			writeError(w, http.StatusInternalServerError, req, "search failed")
		}
	}
}

func handleStatus(statuses StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		st, err := statuses.GetStatus(r.Context(), id)
		if err != nil {
			zap.L().Error("api: status lookup failed", zap.String("entity", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status lookup failed"})
			return
		}
		if st == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no enrichment status for entity"})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func writeError(w http.ResponseWriter, code int, req model.SearchRequest, msg string) {
	writeJSON(w, code, model.SearchResponse{
		Success: false,
		Results: []model.SearchResult{},
		Query:   req.Query,
		Filters: req.Filters,
		Error:   msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
