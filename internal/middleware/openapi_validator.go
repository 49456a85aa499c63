package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig controls which REST traffic is checked against the
// published API document.
type OpenAPIValidatorConfig struct {
	Enabled  bool
	SpecPath string

	ValidateRequests bool
	// ValidateResponses buffers every response body; leave off in production.
	ValidateResponses bool

	// SkipPaths match exactly or as a path-segment prefix.
	SkipPaths []string
}

// DefaultOpenAPIValidatorConfig validates REST requests only. The websocket
// upgrade and operational endpoints are not described by the document.
func DefaultOpenAPIValidatorConfig(enabled bool, specPath string) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:          enabled,
		SpecPath:         specPath,
		ValidateRequests: true,
		SkipPaths:        []string{"/health", "/metrics", "/ws"},
	}
}

type openAPIValidator struct {
	cfg     *OpenAPIValidatorConfig
	router  routers.Router
	options *openapi3filter.Options
}

// OpenAPIValidator rejects REST requests that do not match the API document
// with 400. A document that cannot be loaded disables validation rather than
// the API.
func OpenAPIValidator(cfg *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	noop := func(next http.Handler) http.Handler { return next }

	if cfg == nil || !cfg.Enabled {
		slog.Info("OpenAPI validation disabled")
		return noop
	}

	router, err := loadOpenAPIRouter(cfg.SpecPath)
	if err != nil {
		slog.Error("OpenAPI validation disabled, document unusable",
			slog.String("path", cfg.SpecPath),
			slog.String("error", err.Error()))
		return noop
	}

	v := &openAPIValidator{
		cfg:    cfg,
		router: router,
		options: &openapi3filter.Options{
			// Sessions are checked by the Auth middleware.
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			MultiError:         true,
		},
	}

	slog.Info("OpenAPI validation enabled",
		slog.String("spec_path", cfg.SpecPath),
		slog.Bool("validate_requests", cfg.ValidateRequests),
		slog.Bool("validate_responses", cfg.ValidateResponses))
	return v.wrap
}

func loadOpenAPIRouter(path string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	return router, nil
}

func (v *openAPIValidator) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkipPath(r.URL.Path, v.cfg.SkipPaths) {
			next.ServeHTTP(w, r)
			return
		}

		route, params, err := v.router.FindRoute(r)
		if err != nil {
			if !v.cfg.ValidateRequests {
				next.ServeHTTP(w, r)
				return
			}
			slog.Warn("request does not match any documented operation",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path))
			writeValidationError(w, fmt.Sprintf("No documented operation for %s %s", r.Method, r.URL.Path))
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: params,
			Route:      route,
			Options:    v.options,
		}

		if v.cfg.ValidateRequests {
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				slog.Warn("request validation failed",
					slog.String("operation", route.Operation.OperationID),
					slog.String("error", err.Error()))
				writeValidationError(w, "Request validation failed: "+err.Error())
				return
			}
		}

		if !v.cfg.ValidateResponses {
			next.ServeHTTP(w, r)
			return
		}

		capture := &bodyCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)
		v.checkResponse(r.Context(), input, capture)
	})
}

// checkResponse only logs; the response has already been written.
func (v *openAPIValidator) checkResponse(ctx context.Context, input *openapi3filter.RequestValidationInput, c *bodyCapture) {
	err := openapi3filter.ValidateResponse(ctx, &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 c.status,
		Header:                 c.Header(),
		Body:                   io.NopCloser(bytes.NewReader(c.body.Bytes())),
		Options:                v.options,
	})
	if err != nil {
		slog.Warn("response does not match documented schema",
			slog.String("operation", input.Route.Operation.OperationID),
			slog.Int("status", c.status),
			slog.String("error", err.Error()))
	}
}

// shouldSkipPath matches a skip entry exactly or as a path-segment prefix,
// so /health skips /health/ready but not /healthz.
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skip := range skipPaths {
		if path == skip || strings.HasPrefix(path, strings.TrimSuffix(skip, "/")+"/") {
			return true
		}
	}
	return false
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusBadRequest, message)
}

// bodyCapture tees the response so it can be validated after the handler
// returns.
type bodyCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *bodyCapture) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *bodyCapture) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
