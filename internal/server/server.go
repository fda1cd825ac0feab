// Package server exposes the operational HTTP endpoints of the monitor
// process. There is no user-facing query API here; consumers read the
// persisted real times directly from the store.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MonitorStats reports the size of the running monitor fleet.
type MonitorStats interface {
	ActiveMonitors() int
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

type statusResponse struct {
	ActiveMonitors int       `json:"activeMonitors"`
	Timestamp      time.Time `json:"timestamp"`
}

// Handler builds the operational router.
func Handler(store Pinger, stats MonitorStats) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:    "ok",
			Database:  "connected",
			Timestamp: time.Now().UTC(),
		}
		code := http.StatusOK

		if err := store.Ping(ctx); err != nil {
			resp.Status = "error"
			resp.Database = "disconnected"
			resp.Error = err.Error()
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, resp)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			ActiveMonitors: stats.ActiveMonitors(),
			Timestamp:      time.Now().UTC(),
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
