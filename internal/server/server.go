package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"gremd/internal/config"
	"gremd/internal/eval"
	"gremd/internal/graph"
	"gremd/internal/logger"
	"gremd/internal/op"
	"gremd/internal/session"
)

const gremlinEndpoint = "/gremlin"

// Server owns the session registry for its lifetime and wires the op
// processor to the WebSocket front end.
type Server struct {
	Settings  config.Settings
	Registry  *session.Registry
	Processor *op.Processor
}

func New(settings config.Settings, graphs *graph.Manager, evaluator eval.Evaluator) *Server {
	registry := session.NewRegistry(settings.SessionTimeout.Std(), settings.SweepInterval.Std())
	registry.OnEvict(func(id string) {
		logger.Logger.Info().Str("session", id).Int("live", registry.Len()).Msg("session expired")
	})

	return &Server{
		Settings:  settings,
		Registry:  registry,
		Processor: op.NewProcessor(registry, graphs, evaluator),
	}
}

// Run serves until SIGINT/SIGTERM, then drains the HTTP server and kills
// every live session so no transaction outlives the process.
func (s *Server) Run() {
	mux := http.NewServeMux()
	mux.HandleFunc(gremlinEndpoint, s.HandleGremlin)
	mux.HandleFunc("/health", s.HandleHealth)

	var handler http.Handler = mux
	handler = RecoveryMiddleware(handler)
	handler = CorsMiddleware(handler)

	httpServer := &http.Server{
		Addr:              s.Settings.Host + ":" + s.Settings.Port,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal().Err(err).Msg("server error")
		}
	}()

	logger.Logger.Info().
		Str("addr", httpServer.Addr).
		Dur("sessionTimeout", s.Settings.SessionTimeout.Std()).
		Msg("gremd server started")

	<-sigChan
	logger.Logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	s.Registry.Shutdown()
	logger.Logger.Info().Msg("server stopped")
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
