package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"llmd/internal/orchestrator"
	"llmd/internal/registry"
	"llmd/pkg/types"
)

// maxBodyBytes caps JSON request bodies at 1 MiB.
const maxBodyBytes int64 = 1 << 20

// Server wires the registry and orchestrator to the HTTP surface.
type Server struct {
	reg          *registry.Registry
	orch         *orchestrator.Orchestrator
	defaultModel string
	log          zerolog.Logger
}

// NewServer constructs the HTTP layer. defaultModel, when non-empty, is
// substituted into query requests that name no model.
func NewServer(reg *registry.Registry, orch *orchestrator.Orchestrator, defaultModel string, log zerolog.Logger) *Server {
	return &Server{reg: reg, orch: orch, defaultModel: defaultModel, log: log}
}

// Router builds the chi handler with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.requestLogger)
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", s.handleListModels)
	r.Post("/models/pull", s.handlePull)
	r.Get("/models/info", s.handleModelInfo)
	r.Delete("/models", s.handleDelete)
	r.Post("/models/load", s.handleLoad)
	r.Post("/models/unload", s.handleUnload)
	r.Post("/respond", s.handleRespond)
	r.Post("/query", s.handleQuery)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.Handler())
	MountSwagger(r)
	return r
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(sr, r)
		ev := s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.status).
			Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Msg("http request")
	})
}

// decodeJSON enforces content type and body limits before decoding into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// handleListModels godoc
// @Summary List locally available models
// @Produce json
// @Success 200 {object} types.ModelsResponse
// @Router /models [get]
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	records, err := s.reg.ListAvailable()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, types.ModelsResponse{Models: records})
}

// handlePull godoc
// @Summary Acquire a model from the hub
// @Accept json
// @Produce json
// @Param request body types.PullRequest true "pull request"
// @Success 200 {object} types.ModelRecord
// @Router /models/pull [post]
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req types.PullRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}
	err := s.reg.EnsureAvailable(r.Context(), req.Model, req.Force, func(f float64) {
		s.log.Debug().Str("model", req.Model).Float64("progress", f).Msg("pull progress")
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	rec, err := s.reg.ModelInfo(req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model == "" {
		writeJSONError(w, http.StatusBadRequest, "model query parameter is required")
		return
	}
	rec, err := s.reg.ModelInfo(model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model == "" {
		writeJSONError(w, http.StatusBadRequest, "model query parameter is required")
		return
	}
	if err := s.reg.Delete(model); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req types.LoadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}
	if _, err := s.reg.Load(r.Context(), req.Model); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUnload removes the named resident model, or every resident model
// when the body names none.
func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	var req types.LoadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		s.reg.UnloadAll()
	} else {
		s.reg.Unload(req.Model)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRespond godoc
// @Summary Execute a single-turn free-text query
// @Accept json
// @Produce json
// @Param request body types.QueryRequest true "query"
// @Success 200 {object} types.QueryResult
// @Router /respond [post]
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req types.QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		req.Model = s.defaultModel
	}
	res, err := s.orch.Respond(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

// structuredResponse wraps a decoded structured-query result.
type structuredResponse struct {
	Result          json.RawMessage `json:"result"`
	ModelID         string          `json:"model_id"`
	ApproxTokens    int             `json:"approx_tokens"`
	DurationSeconds float64         `json:"duration_seconds"`
}

// handleQuery executes a schema-constrained query and returns the decoded
// JSON value.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req types.QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		req.Model = s.defaultModel
	}
	var out json.RawMessage
	res, err := s.orch.QueryStructured(r.Context(), req, &out)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, structuredResponse{
		Result:          out,
		ModelID:         res.ModelID,
		ApproxTokens:    res.ApproxTokens,
		DurationSeconds: res.DurationSeconds,
	})
}

// Shutdown unloads resident models; called on graceful teardown.
func (s *Server) Shutdown() {
	s.reg.UnloadAll()
}
