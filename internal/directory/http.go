package directory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

// ServiceName is reported by the health route.
const ServiceName = "livescreen-directory"

const maxBodyBytes = 16 * 1024

type registerRequest struct {
	RoomID     string `json:"roomId"`
	Password   string `json:"password"`
	Address    string `json:"wsUrl"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type resolveRequest struct {
	Code     string `json:"code"`
	RoomID   string `json:"roomId"`
	Password string `json:"password"`
}

type registerResponse struct {
	OK bool `json:"ok"`
	*Registration
}

type resolveResponse struct {
	OK bool `json:"ok"`
	*Resolution
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// NewHandler serves d over HTTP with permissive CORS.
func NewHandler(d Directory) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": ServiceName})
	})
	mux.HandleFunc("POST /register", registerHandler(d))
	mux.HandleFunc("POST /resolve", resolveHandler(d))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(mux)
}

func registerHandler(d Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decode(w, r, &req) {
			return
		}
		reg, err := d.Register(r.Context(), req.RoomID, req.Password, req.Address, time.Duration(req.TTLSeconds)*time.Second)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, registerResponse{OK: true, Registration: reg})
	}
}

func resolveHandler(d Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolveRequest
		if !decode(w, r, &req) {
			return
		}

		var (
			res *Resolution
			err error
		)
		if req.Code != "" {
			res, err = d.ResolveCode(r.Context(), req.Code)
		} else {
			res, err = d.Resolve(r.Context(), req.RoomID, req.Password)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resolveResponse{OK: true, Resolution: res})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return false
	}
	return true
}

// StatusFor maps a directory error onto its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrProtocol):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrBadPassword):
		return http.StatusForbidden
	case errors.Is(err, protocol.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNoFreeCode):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	var opErr *protocol.Error
	switch {
	case status == http.StatusServiceUnavailable:
		msg = "No free code available. Retry."
	case errors.As(err, &opErr) && opErr.Details != "":
		msg = opErr.Details
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}
