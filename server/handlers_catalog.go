package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/moyuhunter/huntqueue/broadcast"
	"github.com/moyuhunter/huntqueue/db"
	"github.com/moyuhunter/huntqueue/match"
	"github.com/moyuhunter/huntqueue/telemetry"
)

// HandleCatalog serves the monster catalog: GET lists entries, POST
// inserts or replaces one, DELETE clears everything. Every write
// rebroadcasts the full catalog so overlays pick it up immediately.
func (h *Handlers) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "catalog store unavailable", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		entries, err := db.ListCatalog(r.Context(), h.db)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []match.CatalogEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodPost:
		var e match.CatalogEntry
		if err := decodeJSON(r, &e); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(e.Name) == "" {
			http.Error(w, "bad request: name is required", http.StatusBadRequest)
			return
		}
		if err := db.PutCatalogEntry(r.Context(), h.db, e); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.broadcastCatalog(r)
		writeJSON(w, http.StatusCreated, e)
	case http.MethodDelete:
		if err := db.ClearCatalog(r.Context(), h.db); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.broadcastCatalog(r)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleCatalogEntry removes one entry by name: DELETE /catalog/{name}.
// Names are CJK, so the path segment is URL-escaped by clients.
func (h *Handlers) HandleCatalogEntry(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "catalog store unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/catalog/")
	name, err := url.PathUnescape(raw)
	if err != nil || name == "" || strings.Contains(name, "/") {
		http.Error(w, "bad request: missing name", http.StatusBadRequest)
		return
	}
	removed, err := db.RemoveCatalogEntry(r.Context(), h.db, name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.broadcastCatalog(r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) broadcastCatalog(r *http.Request) {
	entries, err := db.ListCatalog(r.Context(), h.db)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("catalog reread for broadcast failed", "err", err)
		return
	}
	if entries == nil {
		entries = []match.CatalogEntry{}
	}
	if err := h.hub.Publish(broadcast.ChannelCatalog, entries); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("catalog broadcast failed", "err", err)
		return
	}
	telemetry.CountSnapshot(string(broadcast.ChannelCatalog))
}
