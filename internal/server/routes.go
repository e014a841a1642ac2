package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/AgentIsComing/live-screen-share-releases/internal/rendezvous"
	"github.com/AgentIsComing/live-screen-share-releases/internal/version"
)

// SignalPath is the only path that accepts WebSocket upgrades.
const SignalPath = "/signal"

const shutdownTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Browsers and desktop clients connect from arbitrary origins; rooms are
	// the only access boundary.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs upgrades the request and hands the connection to the hub.
func ServeWs(hub *rendezvous.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		if !rendezvous.NewClient(hub, conn).Serve() {
			slog.Warn("connection refused, hub stopped", "remote", r.RemoteAddr)
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func bannerHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "livescreen signaling server %s\nconnect to %s\n", version.Version, SignalPath)
}

func statsHandler(hub *rendezvous.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := hub.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

// NewHandler returns the server's routes wrapped in permissive CORS.
func NewHandler(hub *rendezvous.Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /stats", statsHandler(hub))
	mux.HandleFunc("GET "+SignalPath, ServeWs(hub))
	mux.HandleFunc("GET /{$}", bannerHandler)
	return cors.Default().Handler(mux)
}

// ListenAndServe serves handler on addr until ctx is done, then shuts the
// listener down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Run starts a hub and serves it on addr until ctx is done.
func Run(ctx context.Context, addr string, opts ...rendezvous.Option) error {
	hub := rendezvous.NewHub(opts...)
	go hub.Run(ctx)

	slog.Info("signaling server listening", "addr", addr, "path", SignalPath)
	return ListenAndServe(ctx, addr, NewHandler(hub))
}
