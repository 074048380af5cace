package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/findings"
	"github.com/ziadkadry99/auditq/internal/router"
	"github.com/ziadkadry99/auditq/internal/schema"
)

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type queryResponse struct {
	*router.Result
	NarrativeHTML string `json:"narrative_html,omitempty"`
}

type classifyResponse struct {
	MaskedQuery    string              `json:"masked_query"`
	Classification classifier.Result   `json:"classification"`
	Warnings       []extractor.Warning `json:"warnings,omitempty"`
}

type schemaResponse struct {
	Entity string         `json:"entity"`
	Fields []schema.Field `json:"fields"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.deps.Pipeline.Handle(r.Context(), router.Request{
		Query:     req.Query,
		SessionID: req.SessionID,
		RequestID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := queryResponse{Result: res}
	if r.URL.Query().Get("format") == "html" {
		html, err := s.renderer.HTML(res.Narrative)
		if err != nil {
			s.logger.Warn("rendering narrative", zap.Error(err))
		}
		resp.NarrativeHTML = html
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, router.ErrEmptyQuery.Error())
		return
	}

	masked, cls, warnings := s.deps.Pipeline.Classify(req.Query)
	writeJSON(w, http.StatusOK, classifyResponse{
		MaskedQuery:    masked,
		Classification: cls,
		Warnings:       warnings,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schemaResponse{
		Entity: s.deps.Registry.Entity(),
		Fields: s.deps.Registry.Fields(),
	})
}

func (s *Server) handleFinding(w http.ResponseWriter, r *http.Request) {
	f, err := s.deps.Findings.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, findings.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteMappings(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Sessions.DeleteSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
