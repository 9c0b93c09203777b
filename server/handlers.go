// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"

	"github.com/moyuhunter/huntqueue/broadcast"
	"github.com/moyuhunter/huntqueue/config"
	"github.com/moyuhunter/huntqueue/queue"
	"github.com/moyuhunter/huntqueue/supervisor"
)

// Deps carries the shared components handlers operate on. DB may be nil in
// tests; handlers that touch it degrade to in-memory behavior where that is
// safe and report 503 where it is not.
type Deps struct {
	DB     *sql.DB
	Engine *queue.Engine
	Hub    *broadcast.Hub
	Sup    *supervisor.Supervisor
	Cfg    *config.Config
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db     *sql.DB
	ctx    context.Context
	engine *queue.Engine
	hub    *broadcast.Hub
	sup    *supervisor.Supervisor
	cfg    *config.Config
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	return &Handlers{
		db:     deps.DB,
		ctx:    ctx,
		engine: deps.Engine,
		hub:    deps.Hub,
		sup:    deps.Sup,
		cfg:    deps.Cfg,
	}
}
