package lighting

import (
	"context"
	"runtime"

	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/gpu"
	"golang.org/x/sync/errgroup"
)

// minBatch keeps small frames on one goroutine.
const minBatch = 64

// LightInstance is one simulation light as seen by extraction.
type LightInstance struct {
	Entity    uint64
	Transform core.Transform
	Params    core.LightParams
}

// ExtractedLight is the render-side state of a light for one frame.
type ExtractedLight struct {
	Entity   uint64
	Snapshot core.LightSnapshot
	Bounds   core.LightBounds
	// Culled lights are neither uploaded nor drawn.
	Culled bool
	// DynamicOffset is valid only when Uploaded is set.
	DynamicOffset uint32
	Uploaded      bool
}

type ExtractorOptions struct {
	// Workers bounds the goroutines used per frame. Zero means GOMAXPROCS.
	Workers int
	// CacheAffine reuses the decomposed matrices of lights whose transform
	// did not change since the previous frame.
	CacheAffine bool
	Logger      gpu.Logger
}

type cachedAffine struct {
	transform core.Transform
	parts     core.AffineParts
}

type extractSlot struct {
	light ExtractedLight
	parts core.AffineParts
	ok    bool
	hit   bool
}

// Extractor turns light instances into snapshots in parallel. Output order
// follows input order.
type Extractor struct {
	workers int
	logger  gpu.Logger
	cache   map[uint64]cachedAffine
	slots   []extractSlot

	Skipped   int
	CacheHits int
}

func NewExtractor(opts ExtractorOptions) *Extractor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = gpu.NopLogger()
	}
	e := &Extractor{workers: workers, logger: logger}
	if opts.CacheAffine {
		e.cache = make(map[uint64]cachedAffine)
	}
	return e
}

// Extract snapshots every instance. Instances whose transform cannot be
// inverted are dropped for this frame and do not affect the others. The
// only error is cancellation of ctx.
func (e *Extractor) Extract(ctx context.Context, instances []LightInstance) ([]ExtractedLight, error) {
	n := len(instances)
	if cap(e.slots) < n {
		e.slots = make([]extractSlot, n)
	}
	slots := e.slots[:n]

	batch := (n + e.workers - 1) / e.workers
	if batch < minBatch {
		batch = minBatch
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < n; start += batch {
		end := min(start+batch, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				slots[i] = e.extractOne(instances[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ExtractedLight, 0, n)
	e.Skipped, e.CacheHits = 0, 0
	var next map[uint64]cachedAffine
	if e.cache != nil {
		next = make(map[uint64]cachedAffine, n)
	}
	for i, s := range slots {
		if !s.ok {
			e.Skipped++
			e.logger.Debugf("point light %d skipped: transform not invertible", instances[i].Entity)
			continue
		}
		if s.hit {
			e.CacheHits++
		}
		if next != nil {
			next[s.light.Entity] = cachedAffine{transform: instances[i].Transform, parts: s.parts}
		}
		out = append(out, s.light)
	}
	if next != nil {
		e.cache = next
	}
	return out, nil
}

func (e *Extractor) extractOne(in LightInstance) extractSlot {
	var (
		parts core.AffineParts
		ok    bool
		hit   bool
	)
	if c, found := e.cache[in.Entity]; found && c.transform == in.Transform {
		parts, ok, hit = c.parts, true, true
	} else {
		parts, ok = core.DecomposeAffine(in.Transform)
	}
	if !ok {
		return extractSlot{}
	}
	return extractSlot{
		light: ExtractedLight{
			Entity:   in.Entity,
			Snapshot: parts.Snapshot(in.Params),
			Bounds:   core.LightBounds{Transform: in.Transform, Radius: in.Params.Radius, HalfLength: in.Params.HalfLength},
		},
		parts: parts,
		ok:    true,
		hit:   hit,
	}
}
