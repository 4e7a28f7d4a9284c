package livereload

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	domainerrors "github.com/listenupapp/livewatch/internal/errors"
	"github.com/listenupapp/livewatch/internal/ratelimit"
)

const shutdownTimeout = 5 * time.Second

// FatalReporter receives errors that stop the server after it started.
type FatalReporter interface {
	Fatal(err error)
}

// Options configures a Server.
type Options struct {
	Version string
	// AllowedOrigins restricts browser origins; empty allows all.
	AllowedOrigins []string
	// ChangedRate and ChangedBurst limit /changed calls per remote host.
	ChangedRate  float64
	ChangedBurst int
}

// Server is the live reload server.
type Server struct {
	opts     Options
	hub      *Hub
	router   *chi.Mux
	api      huma.API
	limiter  *ratelimit.KeyedRateLimiter
	reporter FatalReporter
	logger   *slog.Logger
	created  time.Time

	mu       sync.Mutex
	srv      *http.Server
	addr     net.Addr
	stopHub  context.CancelFunc
	shutOnce sync.Once
}

// NewServer creates a Server. Nothing listens until Start.
func NewServer(opts Options, reporter FatalReporter, logger *slog.Logger) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.ChangedRate <= 0 {
		opts.ChangedRate = 20
	}
	if opts.ChangedBurst <= 0 {
		opts.ChangedBurst = 40
	}

	router := chi.NewRouter()
	s := &Server{
		opts:     opts,
		hub:      NewHub(logger),
		router:   router,
		limiter:  ratelimit.New(opts.ChangedRate, opts.ChangedBurst),
		reporter: reporter,
		logger:   logger,
		created:  time.Now(),
	}

	s.setupMiddleware()

	registerErrorHandler()
	config := huma.DefaultConfig("livewatch live reload", opts.Version)
	config.DocsPath = ""
	s.api = humachi.New(router, config)

	s.registerRoutes()
	router.Get("/livereload", s.handleWebSocket)
	router.Get("/events", s.handleEvents)

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(s.opts.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("live reload request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start binds port and serves in the background until ctx is cancelled or
// Shutdown is called. A port that is already bound yields a PORT_IN_USE
// error. When key and cert are both set the server speaks TLS.
func (s *Server) Start(ctx context.Context, port int, key, cert []byte) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return domainerrors.Wrapf(err, domainerrors.CodePortInUse,
				"Port %d is already in use by another process.", port)
		}
		return domainerrors.Wrapf(err, domainerrors.CodeServe, "live reload server cannot listen on port %d", port)
	}

	if len(key) > 0 || len(cert) > 0 {
		pair, err := tls.X509KeyPair(cert, key)
		if err != nil {
			_ = ln.Close()
			return domainerrors.Wrap(err, domainerrors.CodeInvalidConfig, "invalid live reload key pair")
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{pair},
			MinVersion:   tls.VersionTLS12,
		})
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	hubCtx, stopHub := context.WithCancel(ctx)

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr()
	s.stopHub = stopHub
	s.mu.Unlock()

	s.hub.Start(hubCtx)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.fatal(domainerrors.Wrap(err, domainerrors.CodeServe, "live reload server failed"))
		}
	}()

	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	})

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Notify asks every connected client to reload files.
func (s *Server) Notify(ctx context.Context, files []string) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.hub.Emit(NewReloadEvent(f)) {
			return domainerrors.Internalf("live reload could not queue %s", f)
		}
	}
	return nil
}

// Hub returns the client hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Shutdown disconnects clients and stops the server. It is safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutOnce.Do(func() {
		s.limiter.Stop()
		_ = s.hub.Shutdown(ctx)

		s.mu.Lock()
		srv, stopHub := s.srv, s.stopHub
		s.mu.Unlock()

		if stopHub != nil {
			stopHub()
		}
		if srv != nil {
			err = srv.Shutdown(ctx)
		}
	})
	return err
}

func (s *Server) fatal(err error) {
	if s.reporter == nil {
		s.logger.Error(err.Error())
		return
	}
	s.reporter.Fatal(err)
}
