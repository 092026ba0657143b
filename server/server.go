package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/fxcache/router"
	"github.com/sig-0/fxcache/server/config"
)

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Dispatcher hands inbound messages over to the router
type Dispatcher interface {
	// Dispatch starts handling the request, returning its pending response
	Dispatch(ctx context.Context, req router.Request) *router.Pending
}

type Server struct {
	logger   *slog.Logger
	config   *config.Config
	gatherer prometheus.Gatherer

	dispatcher Dispatcher

	mux *chi.Mux
}

// New creates a new server instance
func New(dispatcher Dispatcher, opts ...Option) (*Server, error) {
	s := &Server{
		logger:     noopLogger,
		dispatcher: dispatcher,
		config:     config.DefaultConfig(),
		mux:        chi.NewMux(),
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	// Validate the configuration
	if err := config.ValidateConfig(s.config); err != nil {
		return nil, fmt.Errorf("invalid configuration, %w", err)
	}

	// Set up the CORS middleware
	if s.config.CORSConfig != nil {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSConfig.AllowedOrigins,
			AllowedMethods: s.config.CORSConfig.AllowedMethods,
			AllowedHeaders: s.config.CORSConfig.AllowedHeaders,
		})

		s.mux.Use(corsMiddleware.Handler)
	}

	s.mux.Use(httplog.RequestLogger(s.logger, &httplog.Options{
		Level:         slog.LevelInfo,
		Schema:        httplog.SchemaOTEL,
		RecoverPanics: true,
		Skip: func(r *http.Request, respStatus int) bool {
			return respStatus == 404 || respStatus == 405 || r.URL.Path == "/health"
		},
	}))

	// Register the health check handler
	s.mux.Get("/health", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	})

	// Register the metrics handler
	if s.gatherer != nil {
		s.mux.Method(
			http.MethodGet,
			"/metrics",
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}),
		)
	}

	// Register the API docs
	s.mux.Get(apiDocPath, s.serveAPIDoc)
	s.mux.Head(apiDocPath, s.serveAPIDoc)
	s.mux.Get(apiDocsPath, s.serveAPIDocsPage)

	s.mux.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.HandleMessage)
	})

	return s, nil
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve serves the fxcache service
func (s *Server) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 60 * time.Second,
	}

	group, gCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer s.logger.Info("server shut down")

		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return err
		}

		s.logger.Info(
			fmt.Sprintf(
				"server started at %s",
				ln.Addr().String(),
			),
		)

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-gCtx.Done()

		s.logger.Info("server to be shutdown")

		wsCtx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		return server.Shutdown(wsCtx)
	})

	return group.Wait()
}
