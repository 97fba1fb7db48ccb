// Package links resolves download URLs for version artifacts through the
// rendering engine, memoizing settled link sets so repeated lookups for
// finished versions skip the engine round trip.
package links

import (
	"context"
	"log/slog"
	"sync"

	"podium/internal/catalog"
	"podium/internal/logging"
	"podium/internal/render"
)

// Resolver fetches link sets from the engine and caches the ones that can no
// longer change. Link sets still processing, or flagged as failed, are fetched
// fresh every call so callers see progress.
type Resolver struct {
	engine render.Engine
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]render.Links
}

// NewResolver builds a Resolver on top of the given engine.
func NewResolver(engine render.Engine, logger *slog.Logger) *Resolver {
	return &Resolver{
		engine: engine,
		logger: logging.NewComponentLogger(logger, "links"),
		cache:  make(map[string]render.Links),
	}
}

// Resolve returns the engine's link set for one arrangement version.
func (r *Resolver) Resolve(ctx context.Context, version *catalog.Version) (render.Links, error) {
	key := version.LinksKey()

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	links, err := r.engine.ArtifactLinks(ctx, key)
	if err != nil {
		return render.Links{}, err
	}
	if links.Settled() {
		r.mu.Lock()
		r.cache[key] = links
		r.mu.Unlock()
		r.logger.Debug("memoized link set", logging.String("key", key))
	} else {
		r.logger.Debug("link set not memoizable",
			logging.String("key", key),
			logging.Bool("processing", links.IsProcessing),
			logging.Bool("failed", links.Error))
	}
	return links, nil
}

// Forget drops a memoized link set, forcing the next Resolve to hit the
// engine. Used when a version's artifacts are regenerated.
func (r *Resolver) Forget(version *catalog.Version) {
	r.mu.Lock()
	delete(r.cache, version.LinksKey())
	r.mu.Unlock()
}
