package livereload

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/livewatch/internal/errors"
)

// APIError is the JSON error body returned by the HTTP API.
type APIError struct {
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

var errorHandlerOnce sync.Once

// registerErrorHandler makes huma render domain errors with their own code
// and status.
func registerErrorHandler() {
	errorHandlerOnce.Do(func() {
		huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
			for _, err := range errs {
				var domainErr *domainerrors.Error
				if errors.As(err, &domainErr) {
					return &APIError{
						status:  domainErr.HTTPStatus(),
						Code:    string(domainErr.Code),
						Message: domainErr.Message,
						Details: domainErr.Details,
					}
				}
			}
			return &APIError{status: status, Code: statusToCode(status), Message: message}
		}
	})
}

func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(domainerrors.CodeValidation)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusTooManyRequests:
		return string(domainerrors.CodeRateLimited)
	default:
		return string(domainerrors.CodeInternal)
	}
}

// WelcomeOutput is the body of GET /.
type WelcomeOutput struct {
	Body struct {
		TinyLR  string `json:"tinylr" doc:"Greeting kept for tiny-lr compatible tooling"`
		Version string `json:"version" doc:"Server version"`
	}
}

// ChangedQuery triggers a reload through GET /changed.
type ChangedQuery struct {
	Files string `query:"files" doc:"Comma separated list of changed files"`
}

// ChangedInput triggers a reload through POST /changed.
type ChangedInput struct {
	Body struct {
		Files []string `json:"files" doc:"Changed files"`
	}
}

// ChangedOutput reports who was told about which files.
type ChangedOutput struct {
	Body struct {
		Clients []string `json:"clients" doc:"Ids of notified clients"`
		Files   []string `json:"files" doc:"Files that were announced"`
	}
}

// HealthOutput is the body of GET /health.
type HealthOutput struct {
	Body struct {
		Status  string `json:"status" doc:"Always healthy while the server answers"`
		Clients int    `json:"clients" doc:"Connected live reload clients"`
		Uptime  string `json:"uptime" doc:"Time since the server started"`
	}
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "welcome",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Server greeting",
		Tags:        []string{"LiveReload"},
	}, s.handleWelcome)

	huma.Register(s.api, huma.Operation{
		OperationID: "changedQuery",
		Method:      http.MethodGet,
		Path:        "/changed",
		Summary:     "Announce changed files",
		Tags:        []string{"LiveReload"},
		Middlewares: huma.Middlewares{s.rateLimit},
	}, s.handleChangedQuery)

	huma.Register(s.api, huma.Operation{
		OperationID: "changed",
		Method:      http.MethodPost,
		Path:        "/changed",
		Summary:     "Announce changed files",
		Tags:        []string{"LiveReload"},
		Middlewares: huma.Middlewares{s.rateLimit},
	}, s.handleChanged)

	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
	}, s.handleHealth)
}

func (s *Server) handleWelcome(_ context.Context, _ *struct{}) (*WelcomeOutput, error) {
	out := &WelcomeOutput{}
	out.Body.TinyLR = "Welcome"
	out.Body.Version = s.opts.Version
	return out, nil
}

func (s *Server) handleChangedQuery(ctx context.Context, in *ChangedQuery) (*ChangedOutput, error) {
	var files []string
	for f := range strings.SplitSeq(in.Files, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return s.changed(ctx, files)
}

func (s *Server) handleChanged(ctx context.Context, in *ChangedInput) (*ChangedOutput, error) {
	return s.changed(ctx, in.Body.Files)
}

func (s *Server) changed(ctx context.Context, files []string) (*ChangedOutput, error) {
	if len(files) == 0 {
		return nil, domainerrors.ValidationWithDetails("no files given", map[string]string{"files": "required"})
	}

	if err := s.Notify(ctx, files); err != nil {
		return nil, err
	}

	out := &ChangedOutput{}
	out.Body.Clients = s.hub.ClientIDs()
	out.Body.Files = files
	return out, nil
}

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "healthy"
	out.Body.Clients = s.hub.ClientCount()
	out.Body.Uptime = time.Since(s.created).Round(time.Second).String()
	return out, nil
}

// rateLimit limits /changed per remote host.
func (s *Server) rateLimit(ctx huma.Context, next func(huma.Context)) {
	key := hostOnly(ctx.RemoteAddr())
	if !s.limiter.Allow(key) {
		s.logger.Warn("Rate limit exceeded", "ip", key, "path", ctx.URL().Path)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests,
			"Too many requests. Please try again later.", domainerrors.ErrRateLimited)
		return
	}
	next(ctx)
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
