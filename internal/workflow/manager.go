package workflow

import (
	"log/slog"

	"podium/internal/catalog"
	"podium/internal/config"
	"podium/internal/logging"
	"podium/internal/poller"
	"podium/internal/render"
)

// Manager coordinates artifact generation: it owns the trigger-render-poll
// cycle for audio and part-book jobs, writing every transition back to the
// catalog so observers never depend on in-memory state.
type Manager struct {
	cfg    *config.Config
	store  *catalog.Store
	engine render.Engine
	poller *poller.Poller
	logger *slog.Logger
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *catalog.Store, engine render.Engine, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  store,
		engine: engine,
		poller: poller.New(cfg, logger),
		logger: logging.NewComponentLogger(logger, "workflow"),
	}
}
