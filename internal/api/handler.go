package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tablechat/tablechat/internal/assistant"
	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/ephemeral"
	"github.com/tablechat/tablechat/internal/observability"
	"github.com/tablechat/tablechat/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

// Assistant is the set of operations exposed over HTTP.
type Assistant interface {
	AvailableTables(ctx context.Context) ([]string, error)
	ConfiguredTables(ctx context.Context) ([]assistant.ConfiguredTable, error)
	RegisterTable(ctx context.Context, name string) (string, error)
	UnregisterTable(ctx context.Context, name string) error
	UpdateDescription(ctx context.Context, name, description string) error
	IngestDocument(ctx context.Context, filename string, body []byte) (assistant.Upload, error)
	EphemeralTables() []ephemeral.Summary
	RemoveEphemeral(ctx context.Context, name string) error
	OpenDocument(ctx context.Context, name string) (storage.Document, error)
	Ask(ctx context.Context, question string, tables []string) (assistant.Answer, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Assistant
}

type route struct {
	pattern string
	handler func(Dependencies, http.ResponseWriter, *http.Request)
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	maxUploadBytes := cfg.HTTP.MaxUploadBytes
	routes := []route{
		{"GET /v1/available-tables", handleAvailableTables},
		{"GET /v1/tables", handleListTables},
		{"POST /v1/tables", handleRegisterTable},
		{"PUT /v1/tables/{table}", handleUpdateTable},
		{"DELETE /v1/tables/{table}", handleUnregisterTable},
		{"POST /v1/uploads", func(deps Dependencies, w http.ResponseWriter, r *http.Request) {
			handleUpload(deps, maxUploadBytes, w, r)
		}},
		{"GET /v1/uploads", handleListUploads},
		{"DELETE /v1/uploads/{table}", handleRemoveUpload},
		{"GET /v1/uploads/{table}/source", handleUploadSource},
		{"POST /v1/chat", handleChat},
	}

	protected := http.NewServeMux()
	for _, rt := range routes {
		handle := rt.handler
		protected.HandleFunc(rt.pattern, func(w http.ResponseWriter, r *http.Request) {
			if deps.Assistant == nil {
				writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependency is not configured", false, nil)
				return
			}
			handle(deps, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
	}
	if len(cfg.HTTP.CORSOrigins) > 0 {
		middlewares = append(middlewares, cors.Handler(cors.Options{
			AllowedOrigins:   cfg.HTTP.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Trace-ID"},
			ExposedHeaders:   []string{"X-Trace-ID", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	middlewares = append(middlewares, observability.MetricsMiddleware)
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckStoreDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Store.DSN == "" {
			return errors.New("store dsn is not configured")
		}
		return nil
	}
}

// CheckObjectStoreConfig passes when uploads are not archived.
func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.ArchiveUploads {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writeServiceError maps a classified service error onto the error envelope.
func writeServiceError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	classified := assistant.AsError(err)
	status := http.StatusInternalServerError
	switch classified.Kind {
	case assistant.KindInvalid:
		status = http.StatusBadRequest
	case assistant.KindNotFound:
		status = http.StatusNotFound
	case assistant.KindUpstream:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError && deps.Logger != nil {
		deps.Logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(r.Context(), w, status, classified.Code, classified.Message, classified.Kind == assistant.KindUpstream, classified.Context)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
