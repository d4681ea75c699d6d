// Package dispatch fans a static list of images out over a fixed pool of
// workers. Each worker owns one vision engine and pulls contiguous chunks of
// images from a shared queue whenever it is idle.
package dispatch

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/andresmejia3/facesweep/internal/planner"
	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/andresmejia3/facesweep/internal/vision"
)

// Saver persists an annotated copy of a matched image.
type Saver interface {
	Save(img image.Image, ref types.ImageRef, box image.Rectangle) (string, error)
}

// CompareFunc decides whether a candidate encoding is the known person.
type CompareFunc func(known, candidate types.Encoding) (bool, float64)

// Options tunes a dispatch run. The zero value matches at the default
// tolerance and saves nothing.
type Options struct {
	Tolerance float64
	// Compare overrides the distance check built from Tolerance.
	Compare CompareFunc
	// Load overrides vision.LoadImage.
	Load func(path string) (*vision.Image, error)
	// Saver receives every match; nil disables annotation.
	Saver Saver
	// OnStart is called with the final plan once all engines are up.
	OnStart func(total int, plan planner.Plan)
	// OnOutcome is called once per image from a single goroutine.
	OnOutcome func(types.Outcome)
	// Logf receives per-image log lines. It may be called concurrently.
	Logf func(format string, args ...any)
}

// Result holds one outcome per input image, in completion order.
type Result struct {
	Plan     planner.Plan
	Outcomes []types.Outcome
}

// Matches returns the matched outcomes.
func (r Result) Matches() []types.Outcome {
	var out []types.Outcome
	for _, o := range r.Outcomes {
		if o.Status == types.Matched {
			out = append(out, o)
		}
	}
	return out
}

// Count returns how many outcomes have status s.
func (r Result) Count(s types.Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Run matches every image in refs against known.
//
// An empty refs returns immediately without starting any engine. Engines are
// started up front, one per worker; a start failure aborts the run before any
// image is processed. Per-image failures never abort the run, they are
// reported as Failed outcomes.
func Run(ctx context.Context, known types.Encoding, refs []types.ImageRef, plan planner.Plan, newEngine vision.Factory, opts Options) (Result, error) {
	if len(refs) == 0 {
		return Result{}, nil
	}
	if plan.IsZero() {
		plan = planner.New(len(refs), runtime.NumCPU())
	}
	plan.Workers = min(plan.Workers, len(refs))
	plan.ChunkSize = max(plan.ChunkSize, 1)

	opts = opts.withDefaults()

	engines := make([]vision.Engine, 0, plan.Workers)
	for i := 0; i < plan.Workers; i++ {
		e, err := newEngine(i)
		if err != nil {
			closeAll(engines)
			return Result{}, fmt.Errorf("worker %d failed to start: %w", i, err)
		}
		engines = append(engines, e)
	}
	defer closeAll(engines)

	if opts.OnStart != nil {
		opts.OnStart(len(refs), plan)
	}

	// The work list is static, so the queue is filled and closed before any
	// worker starts. Workers pull the next chunk as they become free.
	queue := make(chan []types.ImageRef, (len(refs)+plan.ChunkSize-1)/plan.ChunkSize)
	for start := 0; start < len(refs); start += plan.ChunkSize {
		end := min(start+plan.ChunkSize, len(refs))
		queue <- refs[start:end]
	}
	close(queue)

	results := make(chan types.Outcome, plan.Workers*2)
	var wg sync.WaitGroup
	for i, e := range engines {
		wg.Add(1)
		go func(id int, e vision.Engine) {
			defer wg.Done()
			for chunk := range queue {
				for _, ref := range chunk {
					if err := ctx.Err(); err != nil {
						results <- types.Outcome{Ref: ref, Status: types.Failed, Reason: err, WorkerID: id}
						continue
					}
					results <- processImage(id, e, known, ref, opts)
				}
			}
		}(i, e)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	res := Result{Plan: plan, Outcomes: make([]types.Outcome, 0, len(refs))}
	for o := range results {
		res.Outcomes = append(res.Outcomes, o)
		if opts.OnOutcome != nil {
			opts.OnOutcome(o)
		}
	}
	return res, nil
}

// processImage evaluates faces in detection order and stops at the first
// one within tolerance. Only that face is annotated.
func processImage(id int, e vision.Engine, known types.Encoding, ref types.ImageRef, opts Options) (out types.Outcome) {
	start := time.Now()
	out = types.Outcome{Ref: ref, Status: types.NotMatched, WorkerID: id}

	defer func() {
		if r := recover(); r != nil {
			out.Status = types.Failed
			out.Reason = fmt.Errorf("engine panic: %v", r)
		}
		out.Elapsed = time.Since(start)
		if out.Status == types.Failed {
			opts.Logf("  error processing %s: %v", ref.Name, out.Reason)
		}
	}()

	img, err := opts.Load(ref.Path())
	if err != nil {
		out.Status = types.Failed
		out.Reason = err
		return out
	}

	faces, err := e.Recognize(img)
	if err != nil {
		out.Status = types.Failed
		out.Reason = err
		return out
	}
	out.Faces = len(faces)

	for _, f := range faces {
		ok, dist := opts.Compare(known, f.Vec)
		if !ok {
			if out.Distance == 0 || dist < out.Distance {
				out.Distance = dist
			}
			continue
		}

		out.Status = types.Matched
		out.Box = f.Box
		out.Distance = dist
		if opts.Saver != nil {
			path, err := opts.Saver.Save(img.Pixels, ref, f.Box)
			if err != nil {
				out.SaveErr = err
				opts.Logf("  error saving %s: %v", ref.Name, err)
			} else {
				out.Output = path
			}
		}
		opts.Logf("  match: %s (processed in %.3fs)", ref.Name, time.Since(start).Seconds())
		return out
	}
	return out
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = vision.DefaultTolerance
	}
	if o.Compare == nil {
		tol := o.Tolerance
		o.Compare = func(known, candidate types.Encoding) (bool, float64) {
			return vision.Matches(known, candidate, tol)
		}
	}
	if o.Load == nil {
		o.Load = vision.LoadImage
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}
	return o
}

func closeAll(engines []vision.Engine) {
	for _, e := range engines {
		_ = e.Close()
	}
}
