package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/moyuhunter/huntqueue/broadcast"
	"github.com/moyuhunter/huntqueue/db"
	"github.com/moyuhunter/huntqueue/match"
	"github.com/moyuhunter/huntqueue/telemetry"
)

// ssePingInterval keeps idle connections alive through proxies.
const ssePingInterval = 15 * time.Second

var eventChannels = map[string]broadcast.Channel{
	"queue":   broadcast.ChannelQueue,
	"config":  broadcast.ChannelConfig,
	"catalog": broadcast.ChannelCatalog,
}

// HandleEvents streams snapshots over Server-Sent Events:
// GET /events/{queue|config|catalog}. The current state is sent
// immediately so a surface that connects mid-session starts complete,
// then every subsequent publish follows in order.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/events/")
	channel, ok := eventChannels[name]
	if !ok {
		http.Error(w, "unknown event channel", http.StatusNotFound)
		return
	}

	sub, err := h.hub.Subscribe(channel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if env, err := h.initialSnapshot(r, channel); err == nil {
		writeSSE(w, env)
		flusher.Flush()
	} else {
		telemetry.LoggerWithCorr(r.Context()).Warn("initial snapshot failed", "channel", name, "err", err)
	}

	ctx := r.Context()
	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			writeSSE(w, env)
			flusher.Flush()
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// initialSnapshot builds the catch-up envelope for a fresh subscriber.
func (h *Handlers) initialSnapshot(r *http.Request, channel broadcast.Channel) (broadcast.Envelope, error) {
	var payload any
	switch channel {
	case broadcast.ChannelQueue:
		payload = h.engine.Items()
	case broadcast.ChannelConfig:
		payload = h.engine.Config()
	case broadcast.ChannelCatalog:
		if h.db == nil {
			payload = []match.CatalogEntry{}
			break
		}
		entries, err := db.ListCatalog(r.Context(), h.db)
		if err != nil {
			return broadcast.Envelope{}, err
		}
		if entries == nil {
			entries = []match.CatalogEntry{}
		}
		payload = entries
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return broadcast.Envelope{}, err
	}
	return broadcast.Envelope{Type: "update", Data: data}, nil
}

func writeSSE(w http.ResponseWriter, env broadcast.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n\n"))
}
