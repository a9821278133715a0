// Package skycanvas provides the resource lifecycle core of a 2D GPU
// rendering engine: caching, pooling, async loading, and draw batching.
//
// # Overview
//
// skycanvas manages everything a renderer holds between frames. Decoded
// resources live in memory-bounded LRU caches, GPU textures are reused
// through a configuration-keyed pool, remote assets are fetched and decoded
// by a priority-ordered loader, and submitted geometry is grouped by render
// state and flushed one draw call per state.
//
// # Quick Start
//
//	import "github.com/echoVic/sky-canvas-sub001"
//
//	mgr := skycanvas.NewManager(skycanvas.ManagerOptions{})
//	defer mgr.Close()
//
//	ref, err := mgr.Load(ctx, loader.Config{
//	    ID:   "hero",
//	    URL:  "https://assets.example.com/hero.png",
//	    Kind: loader.KindTexture,
//	})
//	if err != nil {
//	    return err
//	}
//	defer mgr.ReleaseResource(ref.ID())
//
//	img := ref.Data().(*loader.ImageData)
//
// # Packages
//
//   - cache: generic LRU cache family with TTL, memory budgets, and a
//     disposing variant for GPU-backed values
//   - loader: priority-admitting, deduplicating resource loader
//   - texture: GPU texture pool and texture-unit allocator
//   - batch: render-state batching and per-batch draw flushing
//   - gpu: the narrow device capability everything renders through
//   - event: synchronous cross-component event emitter
//   - metrics/prom: Prometheus adapter for cache metrics
//
// # Logging
//
// skycanvas produces no log output by default. Call [SetLogger] before
// constructing managers to enable structured logging.
package skycanvas
