package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/api/openapi"
	"givedesk.io/backoffice/internal/pkg/logger"
)

// ValidatorOption configures the OpenAPI validator.
type ValidatorOption func(*validatorOptions)

type validatorOptions struct {
	validateResponses bool
}

// WithResponseValidation buffers every documented response and replaces it
// with a 500 when it breaks the contract. Meant for tests and staging.
func WithResponseValidation() ValidatorOption {
	return func(o *validatorOptions) { o.validateResponses = true }
}

// MustOpenAPIValidator is NewOpenAPIValidator that panics on setup failure.
func MustOpenAPIValidator(basePath string, opts ...ValidatorOption) gin.HandlerFunc {
	mw, err := NewOpenAPIValidator(basePath, opts...)
	if err != nil {
		panic(fmt.Sprintf("init openapi validator: %v", err))
	}
	return mw
}

// NewOpenAPIValidator validates requests, and optionally responses, against
// the embedded OpenAPI document. The document's paths are relative to
// basePath. Paths and methods it does not describe pass through.
func NewOpenAPIValidator(basePath string, opts ...ValidatorOption) (gin.HandlerFunc, error) {
	var o validatorOptions
	for _, opt := range opts {
		opt(&o)
	}

	doc, err := openapi.Load()
	if err != nil {
		return nil, err
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create openapi router: %w", err)
	}

	basePath = normalizeBasePath(basePath)
	filterOpts := &openapi3filter.Options{
		// JWT and role checks run in their own middleware.
		AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error { return nil },
	}

	return func(c *gin.Context) {
		route, pathParams, err := findRoute(router, c.Request, basePath)
		if err != nil {
			if isUndocumented(err) {
				c.Next()
				return
			}
			abortWithOpenAPIError(c, http.StatusBadRequest, "OPENAPI_ROUTE_INVALID", err.Error())
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    filterOpts,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			logger.Debug("OpenAPI request validation failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			abortWithOpenAPIError(c, http.StatusBadRequest, "OPENAPI_REQUEST_INVALID", err.Error())
			return
		}

		if !o.validateResponses {
			c.Next()
			return
		}

		rec := &responseRecorder{ResponseWriter: c.Writer, status: http.StatusOK}
		c.Writer = rec
		c.Next()
		c.Writer = rec.ResponseWriter
		if !rec.written && !rec.statusSet {
			// Nothing to validate; ErrorHandler renders any recorded error.
			return
		}

		resp := &openapi3filter.ResponseValidationInput{
			RequestValidationInput: input,
			Status:                 rec.status,
			Header:                 rec.Header(),
			Options:                filterOpts,
		}
		if rec.body.Len() > 0 {
			resp.SetBodyBytes(rec.body.Bytes())
		}
		if err := openapi3filter.ValidateResponse(c.Request.Context(), resp); err != nil {
			logger.Error("OpenAPI response validation failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", rec.status),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "OPENAPI_RESPONSE_INVALID",
				"message": "response does not conform to OpenAPI contract",
			})
			return
		}

		c.Writer.WriteHeader(rec.status)
		if _, err := c.Writer.Write(rec.body.Bytes()); err != nil {
			logger.Warn("Failed to flush validated response", zap.Error(err))
		}
	}, nil
}

func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" || basePath == "/" {
		return ""
	}
	return "/" + strings.Trim(basePath, "/")
}

// stripBasePath maps a request path onto the document's relative paths.
func stripBasePath(basePath, path string) string {
	switch {
	case basePath == "" && path == "":
		return "/"
	case basePath == "":
		return path
	case path == basePath:
		return "/"
	case strings.HasPrefix(path, basePath+"/"):
		return strings.TrimPrefix(path, basePath)
	}
	return path
}

// findRoute matches req against the document with basePath removed. The
// request URL is left as it was.
func findRoute(router routers.Router, req *http.Request, basePath string) (*routers.Route, map[string]string, error) {
	path, rawPath := req.URL.Path, req.URL.RawPath
	defer func() { req.URL.Path, req.URL.RawPath = path, rawPath }()

	req.URL.Path = stripBasePath(basePath, path)
	if rawPath != "" {
		req.URL.RawPath = stripBasePath(basePath, rawPath)
	}
	return router.FindRoute(req)
}

// isUndocumented reports a path or method the document does not describe.
// The gorillamux router reports both as RouteError reasons, not wrapped
// sentinels.
func isUndocumented(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, routers.ErrPathNotFound.Error()) ||
		strings.Contains(msg, routers.ErrMethodNotAllowed.Error())
}

func abortWithOpenAPIError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// responseRecorder holds a handler's response until it has been validated.
type responseRecorder struct {
	gin.ResponseWriter
	body      bytes.Buffer
	status    int
	statusSet bool
	written   bool
}

// WriteHeader records the status; like gin, it may change until the first write.
func (w *responseRecorder) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.statusSet = true
	}
}

func (w *responseRecorder) WriteHeaderNow() { w.written = true }

func (w *responseRecorder) Write(data []byte) (int, error) {
	w.written = true
	return w.body.Write(data)
}

func (w *responseRecorder) WriteString(s string) (int, error) { return w.Write([]byte(s)) }

func (w *responseRecorder) Status() int { return w.status }

func (w *responseRecorder) Size() int { return w.body.Len() }

func (w *responseRecorder) Written() bool { return w.written }
