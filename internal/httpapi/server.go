package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/memory"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/recordsink"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/router"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/telemetry"
)

// Server exposes the router/memory/record-sink pipeline over HTTP, per
// spec §6's endpoint table.
type Server struct {
	engine  *capability.Engine
	router  *router.Router
	memory  *memory.Manager
	sink    *recordsink.Sink
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	mux chi.Router
}

// NewServer wires the four core components into a chi router.
func NewServer(engine *capability.Engine, rt *router.Router, mem *memory.Manager, sink *recordsink.Sink, metrics *telemetry.Metrics, tracer trace.Tracer) *Server {
	s := &Server{engine: engine, router: rt, memory: mem, sink: sink, metrics: metrics, tracer: tracer}
	s.mux = chi.NewRouter()
	s.mux.Use(chimw.RequestID)
	s.mux.Use(chimw.Recoverer)
	s.mux.Use(s.tracingMiddleware)
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.Post("/api/models/register", s.handleRegisterModel)
	s.mux.Get("/api/models", s.handleListModels)
	s.mux.Get("/api/models/{id}", s.handleGetModel)
	s.mux.Post("/api/models/{id}/verify", s.handleVerifyModel)

	s.mux.Post("/api/chat/register-conversation", s.handleRegisterConversation)
	s.mux.Post("/api/route/get-conversation", s.handleGetConversation)
	s.mux.Post("/api/chat/route", s.handleChatRoute)

	s.mux.Post("/api/performance/report", s.handlePerformanceReport)
	s.mux.Post("/api/violations/report", s.handleViolationReport)
}

// tracingMiddleware starts one span per request and records status/
// duration on it, the shape of the pack's chi + otel instrumentation.
func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		var span trace.Span
		if s.tracer != nil {
			ctx, span = s.tracer.Start(ctx, "http.request", trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			))
			defer span.End()
		}
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		routePattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		s.metrics.ObserveHistogram(context.Background(), "http_request_duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{
			"method": r.Method,
			"route":  routePattern,
			"status": http.StatusText(wrapped.status),
		})
		if span != nil {
			span.SetAttributes(attribute.Int("http.status_code", wrapped.status))
			if wrapped.status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(wrapped.status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}
