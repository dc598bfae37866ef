package main

import (
	"encoding/json"
	"net/http"

	"github.com/aimerfeng/minerewards/internal/jobs"
	"github.com/aimerfeng/minerewards/internal/monitoring"
)

// workerMux serves metrics and the scheduler status
func workerMux(s *jobs.Scheduler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		if !s.IsRunning() {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(s.GetStatus())
	})
	return mux
}
