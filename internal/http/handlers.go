package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ocp/internal/core"
	applog "ocp/internal/log"
	"ocp/internal/middleware/trace"
	"ocp/internal/report"
	"ocp/internal/services"
)

const (
	readTimeout    = 10 * time.Second
	analyzeTimeout = 60 * time.Second
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ServiceUnavailableError("not ready").Write(w)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	const key = "categories"
	if cats, ok := s.categoriesCache.Get(key); ok {
		s.logger.DebugContext(r.Context(), "Categories cache hit", "count", len(cats))
		NewJSONResponse().Body(map[string]any{"categories": cats}).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	cats, err := s.api.Categories(ctx)
	if err != nil {
		s.events.LogError(r.Context(), "List categories failed", err, applog.ComponentHTTP, applog.OpList, nil)
		InternalServerError("failed to list categories").Write(w)
		return
	}
	if cats == nil {
		cats = []core.CategoryCount{}
	}
	s.categoriesCache.Set(key, cats)
	NewJSONResponse().Body(map[string]any{"categories": cats}).Write(w)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	req, err := body.ToRequest()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	req.RequestID = trace.GetRequestID(r.Context())

	// Saved or published runs have side effects and are never served from cache.
	cacheable := !req.Save && !req.PublishReport
	key := analysisCacheKey(req)
	if cacheable {
		if resp, ok := s.analysisCache.Get(key); ok {
			s.logger.DebugContext(r.Context(), "Analysis cache hit")
			NewJSONResponse().Body(resp).Write(w)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
	defer cancel()
	out, err := s.api.Analyze(ctx, req)
	if err != nil {
		s.events.LogError(r.Context(), "Analysis failed", err, applog.ComponentOverlap, applog.OpAnalyze, nil)
		InternalServerError("analysis failed").Write(w)
		return
	}

	resp := analysisResponse{Document: report.NewDocument(out.Result), ReportRef: out.ReportRef}
	resp.RunID = out.RunID
	if cacheable {
		s.analysisCache.Set(key, resp)
	}

	status := http.StatusOK
	if out.RunID != "" {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).Body(resp).Write(w)
}

func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var body SelectionBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	sel, err := ParseSelectionBody(body)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	if err := s.api.SaveSelection(ctx, sel.Key(), sel.Kept); err != nil {
		s.writeSelectionError(w, r, err, applog.OpKeep)
		return
	}
	s.invalidate()
	s.events.LogSelectionChanged(r.Context(), applog.OpKeep, sel.Category, sel.GroupID, len(sel.Kept))

	NewJSONResponse().Body(sel).Write(w)
}

func (s *Server) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	key, err := ParseSelectionQuery(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	if err := s.api.ClearSelection(ctx, key); err != nil {
		s.writeSelectionError(w, r, err, applog.OpClear)
		return
	}
	s.invalidate()
	s.events.LogSelectionChanged(r.Context(), applog.OpClear, key.Category, key.GroupID, 0)

	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) writeSelectionError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, services.ErrReadOnly):
		ConflictError("the configured data source does not store selections").Write(w)
	case errors.Is(err, services.ErrInvalidGroup):
		UnprocessableEntityError(err.Error()).Write(w)
	default:
		s.events.LogError(r.Context(), "Selection update failed", err, applog.ComponentStorage, op, nil)
		InternalServerError("failed to update selection").Write(w)
	}
}
