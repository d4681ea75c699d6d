// Package pipeline runs a complete match: load the known face, scan the
// image folder, size the worker pool and dispatch.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/andresmejia3/facesweep/internal/config"
	"github.com/andresmejia3/facesweep/internal/dispatch"
	"github.com/andresmejia3/facesweep/internal/planner"
	"github.com/andresmejia3/facesweep/internal/report"
	"github.com/andresmejia3/facesweep/internal/scan"
	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/andresmejia3/facesweep/internal/vision"
)

// Report is everything a finished run produced.
type Report struct {
	Known    types.Encoding
	Stats    report.Stats
	Outcomes []types.Outcome // sorted by file name
}

// Matches returns the matched outcomes in file name order.
func (r Report) Matches() []types.Outcome {
	var out []types.Outcome
	for _, o := range r.Outcomes {
		if o.Status == types.Matched {
			out = append(out, o)
		}
	}
	return out
}

// Run performs a parallel match with a planner-sized pool.
func Run(ctx context.Context, cfg *config.Config, newEngine vision.Factory, opts dispatch.Options) (Report, error) {
	return run(ctx, cfg, newEngine, opts, planner.New)
}

// Serial performs the same match on a single worker with chunk size 1. It is
// the baseline for speedup figures and never writes annotated copies.
func Serial(ctx context.Context, cfg *config.Config, newEngine vision.Factory, opts dispatch.Options) (Report, error) {
	opts.Saver = nil
	return run(ctx, cfg, newEngine, opts, func(int, int) planner.Plan { return planner.Serial() })
}

func run(ctx context.Context, cfg *config.Config, newEngine vision.Factory, opts dispatch.Options, plan func(n, cores int) planner.Plan) (Report, error) {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = cfg.Tolerance
	}

	totalStart := time.Now()
	stats := report.Stats{Cores: cfg.Cores}
	if stats.Cores <= 0 {
		stats.Cores = runtime.NumCPU()
	}

	start := time.Now()
	known, err := loadKnown(cfg.Known, newEngine)
	if err != nil {
		return Report{}, err
	}
	stats.LoadTime = time.Since(start)
	logf("  known face loaded (%.3fs)", stats.LoadTime.Seconds())

	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = scan.DefaultExtensions
	}
	start = time.Now()
	refs, err := scan.ScanImages(cfg.Images, exts)
	if err != nil {
		return Report{}, err
	}
	stats.ScanTime = time.Since(start)
	logf("  found %d images (%.3fs)", len(refs), stats.ScanTime.Seconds())

	if len(refs) == 0 {
		stats.TotalTime = time.Since(totalStart)
		return Report{Known: known, Stats: stats}, nil
	}

	p := plan(len(refs), stats.Cores)

	start = time.Now()
	res, err := dispatch.Run(ctx, known, refs, p, newEngine, opts)
	if err != nil {
		return Report{}, err
	}
	stats.ProcessingTime = time.Since(start)
	stats.Plan = res.Plan

	outcomes := res.Outcomes
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Ref.Name < outcomes[j].Ref.Name })

	stats = stats.Tally(outcomes)
	stats.TotalTime = time.Since(totalStart)
	return Report{Known: known, Stats: stats, Outcomes: outcomes}, nil
}

// loadKnown uses a short-lived engine of its own so every dispatcher worker
// still gets a fresh one.
func loadKnown(path string, newEngine vision.Factory) (types.Encoding, error) {
	e, err := newEngine(-1)
	if err != nil {
		return types.Encoding{}, fmt.Errorf("failed to start engine for known face: %w", err)
	}
	defer e.Close()
	return vision.LoadKnown(e, path)
}
