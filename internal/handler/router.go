package handler

import (
	"net/http"
	"time"

	"github.com/givers/message-service/internal/repository"
	"github.com/givers/message-service/internal/service"
	"github.com/givers/message-service/pkg/auth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig wires the HTTP surface to its collaborators.
type RouterConfig struct {
	Messages       service.MessageService
	DB             repository.DB
	Authenticator  auth.Authenticator
	FrontendURL    string
	RequestTimeout time.Duration
	MetricsEnabled bool
	// SubmitLimiter rate-limits POST /messages; nil disables it.
	SubmitLimiter *RateLimiter
}

// NewRouter builds the HTTP handler with all message routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	h := New(cfg.DB, cfg.FrontendURL)
	mh := NewMessageHandler(cfg.Messages)

	var submit http.Handler = http.HandlerFunc(mh.Submit)
	if cfg.SubmitLimiter != nil {
		submit = cfg.SubmitLimiter.Middleware(submit)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/ready", h.Ready)
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	mux.Handle("POST /messages", submit)

	// Admin routes (handler enforces RequireAuthenticated then RequireAdmin)
	mux.HandleFunc("GET /messages", mh.List)
	mux.HandleFunc("GET /messages/{id}", mh.Get)
	mux.HandleFunc("PUT /messages/{id}/status", mh.UpdateStatus)

	var next http.Handler = Metrics(mux)
	next = auth.Identify(cfg.Authenticator)(next)
	if cfg.RequestTimeout > 0 {
		next = Timeout(cfg.RequestTimeout)(next)
	}
	next = RequestLogger(next)
	next = RequestID(next)
	next = SecurityHeaders(next)
	return h.CORS(next)
}
