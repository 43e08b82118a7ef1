package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sync-relay/config"
	"sync-relay/game"
	"sync-relay/grpc"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// EventPublisher receives relay events. *nats.Publisher satisfies it.
type EventPublisher interface {
	PublishJSON(subject string, v any)
}

type noopPublisher struct{}

func (noopPublisher) PublishJSON(string, any) {}

// Server wires the player registry and chat log to HTTP. It holds no state
// of its own beyond those references and counters.
type Server struct {
	registry *game.Registry
	chat     *game.ChatLog
	events   EventPublisher
	metrics  *Metrics

	streamInterval time.Duration
	upgrader       websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
}

func NewServer(conf config.Config, events EventPublisher) *Server {
	if events == nil {
		events = noopPublisher{}
	}
	interval := conf.StreamInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	return &Server{
		registry:       game.NewRegistry(),
		chat:           game.NewChatLog(conf.ChatMaxText),
		events:         events,
		metrics:        &Metrics{},
		streamInterval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		closing: make(chan struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.statusHandler)
	mux.HandleFunc("GET /register", s.registerHandler)
	mux.HandleFunc("GET /players", s.listPlayersHandler)
	mux.HandleFunc("POST /players", s.updatePlayerHandler)
	mux.HandleFunc("GET /chat", s.getChatHandler)
	mux.HandleFunc("POST /chat", s.postChatHandler)
	mux.HandleFunc("GET /stream", s.streamHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("/", notFoundHandler)

	return requestLogger(s.metrics, mux)
}

// Close ends every open spectator stream.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Start serves the relay until SIGINT or SIGTERM, then drains health,
// shuts the HTTP server down within conf.ShutdownTimeout and closes streams.
func Start(conf config.Config, events EventPublisher, health *grpc.HealthServer) error {
	s := NewServer(conf, events)
	srv := &http.Server{
		Addr:              ":" + conf.HTTPPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Relay listening on ", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down relay")
	health.Draining()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	health.Stop()

	return err
}
