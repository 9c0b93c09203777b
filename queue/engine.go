package queue

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/moyuhunter/huntqueue/bili"
	"github.com/moyuhunter/huntqueue/broadcast"
	"github.com/moyuhunter/huntqueue/match"
	"github.com/moyuhunter/huntqueue/telemetry"
)

// CatalogSource supplies the current monster catalog. Backed by the
// durable store; the engine only ever reads it.
type CatalogSource interface {
	List(ctx context.Context) ([]match.CatalogEntry, error)
}

// Engine consumes translated live events and maintains queue state.
type Engine struct {
	catalog CatalogSource
	hub     *broadcast.Hub

	mu    sync.Mutex
	items []Item
	cfg   Config
}

// NewEngine builds an engine with the given starting config.
func NewEngine(catalog CatalogSource, hub *broadcast.Hub, cfg Config) *Engine {
	return &Engine{catalog: catalog, hub: hub, cfg: cfg}
}

// HandleEvent is the sink the supervisor attaches to the live stream.
// It never returns an error: a single bad message must not interrupt
// ingestion, and stream-level trouble is log-worthy, nothing more.
func (e *Engine) HandleEvent(ctx context.Context, ev bili.Event) {
	switch ev.Kind {
	case bili.EventChat:
		telemetry.CountDanmu()
		e.Admit(ctx, ev.Chat)
	case bili.EventClosed:
		telemetry.SetConnected(false)
		slog.Info("live stream closed; waiting for explicit reconnect")
	case bili.EventError:
		telemetry.CountStreamError()
		slog.Error("live stream error", slog.Any("err", ev.Err))
	}
}

// Admit applies the admission policy to one chat message:
//
//  1. content must start with the command keyword; anything else is
//     ordinary chat and ignored
//  2. the sender's guard and fan-badge tiers must clear the configured
//     minimums
//  3. the requested name must fuzzy-match a catalog entry
//
// The same user may hold any number of queue slots; deduplication is a
// policy for layers above this one. On success the item lands at the
// tail, or at the head when jumping is allowed and the sender's guard
// tier is at least the current head's. Every mutation broadcasts the
// whole queue.
func (e *Engine) Admit(ctx context.Context, msg bili.ChatMessage) (Item, bool) {
	name, ok := parseCommand(msg.Content)
	if !ok {
		return Item{}, false
	}

	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	if msg.GuardLevel < cfg.MinGuardLevel || msg.MedalLevel < cfg.MinMedalLevel {
		telemetry.CountRejection("tier")
		return Item{}, false
	}

	catalog, err := e.catalog.List(ctx)
	if err != nil {
		// Catalog unavailable: drop the request rather than kill the
		// ingest loop. The store coming back fixes the next request.
		slog.Warn("catalog read failed during admission", slog.Any("err", err))
		telemetry.CountRejection("catalog_unavailable")
		return Item{}, false
	}
	entry, ok := match.Match(catalog, name)
	if !ok {
		telemetry.CountRejection("no_match")
		return Item{}, false
	}

	item := Item{
		ID:         uuid.New().String(),
		UID:        msg.UID,
		Username:   msg.Username,
		Face:       msg.Face,
		GuardLevel: msg.GuardLevel,
		MedalLevel: msg.MedalLevel,
		Content:    entry.Name,
		Timestamp:  nowMillis(),
	}

	e.mu.Lock()
	if cfg.AllowJump && msg.GuardLevel > 0 && (len(e.items) == 0 || msg.GuardLevel >= e.items[0].GuardLevel) {
		e.items = append([]Item{item}, e.items...)
	} else {
		e.items = append(e.items, item)
	}
	e.publishLocked()
	e.mu.Unlock()

	telemetry.CountAdmitted()
	return item, true
}

// Items returns a copy of the current queue in order.
func (e *Engine) Items() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Item, len(e.items))
	copy(out, e.items)
	return out
}

// Remove dequeues one item by id (an explicit UI action).
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, it := range e.items {
		if it.ID == id {
			e.items = append(e.items[:i], e.items[i+1:]...)
			e.publishLocked()
			return true
		}
	}
	return false
}

// Clear empties the queue.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = nil
	e.publishLocked()
}

// Replace swaps in a full queue snapshot from a surface (manual
// reordering in the control window) and rebroadcasts it.
func (e *Engine) Replace(items []Item) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = make([]Item, len(items))
	copy(e.items, items)
	e.publishLocked()
}

// Config returns the current configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig installs a new configuration and broadcasts it. Persistence
// is the caller's concern; the broadcast happens regardless so surfaces
// never drift from the controlling window.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	if err := e.hub.Publish(broadcast.ChannelConfig, cfg); err != nil {
		slog.Error("config broadcast failed", slog.Any("err", err))
		return
	}
	telemetry.CountSnapshot(string(broadcast.ChannelConfig))
}

// publishLocked broadcasts the whole queue. Callers hold e.mu, which is
// what keeps delivery order equal to mutation order.
func (e *Engine) publishLocked() {
	snapshot := make([]Item, len(e.items))
	copy(snapshot, e.items)
	if err := e.hub.Publish(broadcast.ChannelQueue, snapshot); err != nil {
		slog.Error("queue broadcast failed", slog.Any("err", err))
		return
	}
	telemetry.CountSnapshot(string(broadcast.ChannelQueue))
	telemetry.SetQueueDepth(len(snapshot))
}

// parseCommand extracts the requested name from command content.
func parseCommand(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, CommandPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, CommandPrefix)), true
}
