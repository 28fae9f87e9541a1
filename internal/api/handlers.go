package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/davidahmann/neuroflow/internal/auth"
	"github.com/davidahmann/neuroflow/internal/decision"
	"github.com/davidahmann/neuroflow/internal/export"
	"github.com/davidahmann/neuroflow/internal/gamification"
	"github.com/davidahmann/neuroflow/internal/grade"
	"github.com/davidahmann/neuroflow/pkg/types"
)

const maxBodyBytes = 1 << 20

// ModeReporter tells whether analyses run against the model or the fallback.
type ModeReporter interface {
	Mode() types.AnalysisSource
}

type Handler struct {
	Auth      auth.Authenticator
	Decisions *decision.Service
	Profiles  *gamification.Service
	Hub       Subscriber
	AI        ModeReporter
	Logger    *zap.Logger
	Now       func() time.Time
}

type claimsKey struct{}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	mode := types.SourceFallback
	if h.AI != nil {
		mode = h.AI.Mode()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "ai": string(mode)})
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req decision.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.Decisions.Preview(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Decisions.List(claimsFrom(r).Subject, decision.Filter{Search: q.Get("search"), Status: q.Get("status")})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": list})
}

func (h *Handler) CreateDecision(w http.ResponseWriter, r *http.Request) {
	var req decision.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Decisions.Create(r.Context(), claimsFrom(r).Subject, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	setETag(w, d)
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Decisions.Get(claimsFrom(r).Subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	setETag(w, detail.Decision)
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) UpdateDecision(w http.ResponseWriter, r *http.Request) {
	var req decision.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.Decisions.Update(claimsFrom(r).Subject, chi.URLParam(r, "id"), req, r.Header.Get("If-Match"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	setETag(w, d)
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) AnalyzePaths(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []decision.PathInput `json:"paths"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.Decisions.AnalyzePaths(r.Context(), claimsFrom(r).Subject, chi.URLParam(r, "id"), req.Paths)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.Decisions.GetWorkflow(claimsFrom(r).Subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *Handler) SaveWorkflow(w http.ResponseWriter, r *http.Request) {
	var req decision.WorkflowInput
	if !decodeJSON(w, r, &req) {
		return
	}
	wf, err := h.Decisions.SaveWorkflow(claimsFrom(r).Subject, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

type freeformRequest struct {
	Input string `json:"input"`
}

func (h *Handler) AnalyzeEmotions(w http.ResponseWriter, r *http.Request) {
	var req freeformRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.Decisions.AnalyzeEmotions(r.Context(), claimsFrom(r).Subject, chi.URLParam(r, "id"), req.Input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) MapValues(w http.ResponseWriter, r *http.Request) {
	var req freeformRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.Decisions.MapValues(r.Context(), claimsFrom(r).Subject, chi.URLParam(r, "id"), req.Input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) AnalyzeRisks(w http.ResponseWriter, r *http.Request) {
	out, err := h.Decisions.AnalyzeRisks(r.Context(), claimsFrom(r).Subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Decisions.Get(claimsFrom(r).Subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grade.Evaluate(detail))
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Decisions.Get(claimsFrom(r).Subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	zipBytes, err := export.BuildZip(export.Input{
		Detail:    detail,
		Grade:     grade.Evaluate(detail),
		CreatedAt: h.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=neuroflow-%s.zip", detail.Decision.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zipBytes)
}

func (h *Handler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req decision.ActualOutcomeInput
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.Decisions.RecordOutcome(claimsFrom(r).Subject, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Decisions.Stats(claimsFrom(r).Subject)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	profile, err := h.Profiles.EnsureProfile(claims.Subject, claims.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req gamification.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := h.Profiles.UpdateProfile(claimsFrom(r).Subject, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) GamificationEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Profiles.Events(claimsFrom(r).Subject)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Auth == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication not configured"})
			return
		}
		claims, err := h.Auth.Authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func claimsFrom(r *http.Request) auth.Claims {
	claims, _ := r.Context().Value(claimsKey{}).(auth.Claims)
	return claims
}

// writeError maps service errors to status codes. Anything unrecognised is
// logged and reported as a 500 without detail.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, decision.ErrInvalid), errors.Is(err, gamification.ErrInvalidPreferences):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, decision.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, decision.ErrConflict):
		writeJSON(w, http.StatusPreconditionFailed, map[string]string{"error": err.Error()})
	default:
		h.logger().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func setETag(w http.ResponseWriter, d types.Decision) {
	tag, err := decision.ETag(d)
	if err != nil {
		return
	}
	w.Header().Set("ETag", strconv.Quote(tag))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
