package server

import (
	"net/http"

	"github.com/moyuhunter/huntqueue/db"
	"github.com/moyuhunter/huntqueue/queue"
	"github.com/moyuhunter/huntqueue/telemetry"
)

// HandleConfig serves the queue configuration: GET returns the current
// values, PUT installs and persists new ones. The install and broadcast
// happen even when persistence fails, so surfaces never drift from the
// control window; the failure is logged and the next restart simply
// comes up with the previous values.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.engine.Config())
	case http.MethodPut:
		cfg := h.engine.Config()
		if err := decodeJSON(r, &cfg); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if cfg.MinGuardLevel < 0 || cfg.MinMedalLevel < 0 {
			http.Error(w, "bad request: tier minimums must be non-negative", http.StatusBadRequest)
			return
		}
		h.engine.SetConfig(cfg)
		h.persistConfig(r, cfg)
		writeJSON(w, http.StatusOK, cfg)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) persistConfig(r *http.Request, cfg queue.Config) {
	if h.db == nil {
		return
	}
	if err := db.SaveQueueConfig(r.Context(), h.db, cfg); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("queue config persist failed", "err", err)
	}
}
