package server

import (
	"net/http"
	"strings"

	"github.com/moyuhunter/huntqueue/queue"
)

// HandleQueue serves the whole queue: GET returns it, PUT replaces it
// (manual reordering in the control window), DELETE clears it.
func (h *Handlers) HandleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.engine.Items())
	case http.MethodPut:
		var items []queue.Item
		if err := decodeJSON(r, &items); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		h.engine.Replace(items)
		writeJSON(w, http.StatusOK, h.engine.Items())
	case http.MethodDelete:
		h.engine.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleQueueItem removes one queued request by id: DELETE /queue/{id}.
func (h *Handlers) HandleQueueItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/queue/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "bad request: missing id", http.StatusBadRequest)
		return
	}
	if !h.engine.Remove(id) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
