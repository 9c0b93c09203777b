package server

import (
	"log/slog"
	"net/http"

	"github.com/moyuhunter/huntqueue/telemetry"
)

// HandleConnect starts the live connection. It blocks until the attempt
// resolves, which can take minutes when a login window is involved, and
// reports the outcome:
//
//	200 {"connected": true}   stream attached
//	200 {"connected": false}  login declined or timed out
//	502                       connect failed after credential cleanup
func (h *Handlers) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Body fields override the configured defaults.
	roomID := h.cfg.RoomID
	loginURL := h.cfg.LoginURL
	targetCookie := h.cfg.TargetCookie
	var body struct {
		RoomID       int64  `json:"roomId"`
		URL          string `json:"url"`
		TargetCookie string `json:"targetCookie"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if body.RoomID != 0 {
			roomID = body.RoomID
		}
		if body.URL != "" {
			loginURL = body.URL
		}
		if body.TargetCookie != "" {
			targetCookie = body.TargetCookie
		}
	}
	if roomID <= 0 {
		http.Error(w, "bad request: roomId required (set ROOM_ID or pass it in the body)", http.StatusBadRequest)
		return
	}

	telemetry.LoggerWithCorr(r.Context()).Info("connect requested", slog.Int64("room_id", roomID))
	connected, err := h.sup.Connect(r.Context(), loginURL, targetCookie, roomID)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("connect failed", slog.Any("err", err))
		http.Error(w, "connect failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": connected})
}

// HandleDisconnect closes the live connection if one is open.
func (h *Handlers) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.sup.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}
