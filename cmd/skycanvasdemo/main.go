// Command skycanvasdemo exercises the resource core end to end: it loads
// assets through the manager, pools textures, batches geometry against a
// no-op GPU backend, and prints the aggregated stats.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	skycanvas "github.com/echoVic/sky-canvas-sub001"
	"github.com/echoVic/sky-canvas-sub001/batch"
	"github.com/echoVic/sky-canvas-sub001/gpu"
	"github.com/echoVic/sky-canvas-sub001/loader"
	"github.com/echoVic/sky-canvas-sub001/texture"
)

func main() {
	var (
		assetURL = flag.String("asset", "", "optional image URL to load through the manager")
		frames   = flag.Int("frames", 3, "frames to simulate")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		skycanvas.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if err := run(*assetURL, *frames); err != nil {
		log.Fatal(err)
	}
}

func run(assetURL string, frames int) error {
	device, err := noopDevice()
	if err != nil {
		return fmt.Errorf("open noop device: %w", err)
	}

	mgr := skycanvas.NewManager(skycanvas.ManagerOptions{})
	defer mgr.Close()

	pool := texture.NewPool(device, texture.Options{
		MaxTextures: 32,
		MemoryLimit: 64 * 1024 * 1024,
	})
	defer pool.Close()

	if assetURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ref, err := mgr.Load(ctx, loader.Config{
			ID: "demo-asset", URL: assetURL, Kind: loader.KindTexture,
		})
		if err != nil {
			return err
		}
		img := ref.Data().(*loader.ImageData)
		fmt.Printf("loaded %s: %dx%d, %d bytes decoded\n",
			assetURL, img.Width, img.Height, len(img.Pixels))
		mgr.ReleaseResource(ref.ID())
	}

	renderer := batch.NewRenderer(skycanvas.Logger())
	for frame := 0; frame < frames; frame++ {
		if err := simulateFrame(renderer, device, pool, frame); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
	}

	printStats(mgr, pool)
	return nil
}

// simulateFrame acquires pooled textures, stages geometry, and flushes.
func simulateFrame(renderer *batch.Renderer, device gpu.Device, pool *texture.Pool, frame int) error {
	sprite, err := pool.Get(texture.Config{Width: 128, Height: 128})
	if err != nil {
		return err
	}
	defer pool.Release(sprite)

	geo := batch.NewGeometryBuffer(0, 0)
	for i := 0; i < 16; i++ {
		x := float32(i%4) * 140
		y := float32(i/4) * 140
		if ok, err := geo.AddRect(x, y, 128, 128); err != nil {
			return err
		} else if !ok {
			break
		}
	}

	if err := renderer.Process(batch.Renderable{
		Key:      batch.Key{Texture: sprite.Handle(), Shader: "sprite", ZIndex: frame},
		Vertices: geo.Vertices(),
		Indices:  geo.Indices(),
	}); err != nil {
		return err
	}

	geo.Reset()
	if _, err := geo.AddCircle(400, 300, 80, 32); err != nil {
		return err
	}
	if err := renderer.Process(batch.Renderable{
		Key:      batch.Key{Shader: "solid", Blend: batch.BlendAdditive, ZIndex: frame + 1},
		Vertices: geo.Vertices(),
		Indices:  geo.Indices(),
	}); err != nil {
		return err
	}

	stats, err := renderer.Flush(device, pool)
	if err != nil {
		return err
	}
	fmt.Printf("frame %d: %d draw calls, %d vertices, %d triangles, %d binds\n",
		frame, stats.DrawCalls, stats.Vertices, stats.Triangles, stats.TextureBinds)
	return nil
}

func printStats(mgr *skycanvas.Manager, pool *texture.Pool) {
	ms := mgr.Stats()
	ps := pool.GetStats()
	fmt.Printf("loader: %d loaded, %d failed, avg %v\n",
		ms.Loader.Loaded, ms.Loader.Failed, ms.Loader.AvgLoadTime)
	fmt.Printf("caches: %d generic, %d gpu entries, hit rate %.2f\n",
		ms.Generic.ItemCount, ms.GPU.ItemCount, ms.HitRate)
	fmt.Printf("pool: %d textures, %d created, %d reused, %d bytes\n",
		ps.Count, ps.Created, ps.Reused, ps.MemoryUsed)
}

// noopDevice opens the no-op HAL backend, so the demo runs without GPU
// hardware.
func noopDevice() (gpu.Device, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no noop adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return gpu.NewHALDevice(open.Device, open.Queue, 0), nil
}
