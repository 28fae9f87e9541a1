package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger()))

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/analyze", h.Analyze)
		r.Get("/stats", h.Stats)

		r.Get("/decisions", h.ListDecisions)
		r.Post("/decisions", h.CreateDecision)
		r.Route("/decisions/{id}", func(r chi.Router) {
			r.Get("/", h.GetDecision)
			r.Put("/", h.UpdateDecision)
			r.Post("/paths", h.AnalyzePaths)
			r.Get("/workflow", h.GetWorkflow)
			r.Put("/workflow", h.SaveWorkflow)
			r.Post("/emotions", h.AnalyzeEmotions)
			r.Post("/values", h.MapValues)
			r.Post("/risks", h.AnalyzeRisks)
			r.Get("/grade", h.Grade)
			r.Get("/export", h.Export)
		})
		r.Post("/paths/{id}/outcomes", h.RecordOutcome)

		r.Get("/profile", h.GetProfile)
		r.Post("/profile", h.UpdateProfile)
		r.Get("/gamification/events", h.GamificationEvents)

		r.Get("/subscribe/decisions/{id}", h.SubscribeDecision)
		r.Get("/subscribe/workflows/{id}", h.SubscribeWorkflow)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
