// Package planner chooses the worker count and chunk size for a batch from
// the number of images and the number of available cores.
package planner

const (
	StrategyOverheadMinimization = "overhead minimization"
	StrategyProportionalScaling  = "proportional scaling"
	StrategyBalancedUtilization  = "balanced utilization"
	StrategyHighParallelism      = "high parallelism"
	StrategyFullParallelism      = "full parallelism"
)

// Plan is the allocation chosen for one run. It is never mutated after creation.
type Plan struct {
	Workers   int
	ChunkSize int
	Strategy  string
}

// IsZero reports whether p is the empty plan used for empty datasets.
func (p Plan) IsZero() bool {
	return p.Workers == 0
}

// Serial is the single worker, chunk 1 plan used for baseline comparisons.
func Serial() Plan {
	return Plan{Workers: 1, ChunkSize: 1, Strategy: "serial"}
}

// Tier returns the dataset size class a given n falls into.
func Tier(n int) string {
	switch {
	case n <= 10:
		return "very small dataset"
	case n <= 50:
		return "small dataset"
	case n <= 200:
		return "medium dataset"
	case n <= 1000:
		return "large dataset"
	default:
		return "very large dataset"
	}
}

// New maps (n, cores) onto one of five fixed tiers.
//
// All divisions are floor divisions. The chunk size of a tier is derived from
// the tier's worker count before it is capped at n. An empty dataset yields the
// zero Plan; callers must not start a pool for it.
func New(n, cores int) Plan {
	if n <= 0 {
		return Plan{}
	}
	if cores < 1 {
		cores = 1
	}

	var p Plan
	switch {
	case n <= 10:
		p.Workers = min(max(1, n/3), 4)
		p.ChunkSize = 1
		p.Strategy = StrategyOverheadMinimization
	case n <= 50:
		p.Workers = max(min(n/4, cores/2), 2)
		p.ChunkSize = max(1, n/(p.Workers*3))
		p.Strategy = StrategyProportionalScaling
	case n <= 200:
		p.Workers = max(min(n/3, int(float64(cores)*0.75)), 4)
		p.ChunkSize = 2
		p.Strategy = StrategyBalancedUtilization
	case n <= 1000:
		p.Workers = min(n/5, cores)
		p.ChunkSize = max(2, n/(p.Workers*4))
		p.Strategy = StrategyHighParallelism
	default:
		p.Workers = cores
		p.ChunkSize = max(3, n/(p.Workers*10))
		p.Strategy = StrategyFullParallelism
	}

	// never more workers than tasks
	p.Workers = min(p.Workers, n)
	return p
}

// Distribution is a static estimate of how a plan spreads n images.
type Distribution struct {
	Images          int
	TotalChunks     int
	AvgChunks       float64
	BaseImages      int // images handled by most workers
	RemainderImages int // number of workers that take one extra image
	OverheadRatio   float64
	HighOverhead    bool
}

// perWorkerOverhead is the rough cost of starting a worker relative to one image.
const perWorkerOverhead = 0.05

// Analyze estimates the chunk and image spread of p over n images.
func Analyze(n int, p Plan) Distribution {
	if n <= 0 || p.IsZero() {
		return Distribution{}
	}
	chunk := max(p.ChunkSize, 1)
	d := Distribution{
		Images:          n,
		TotalChunks:     (n + chunk - 1) / chunk,
		BaseImages:      n / p.Workers,
		RemainderImages: n % p.Workers,
		OverheadRatio:   float64(p.Workers) * perWorkerOverhead / float64(n),
	}
	d.AvgChunks = float64(d.TotalChunks) / float64(p.Workers)
	d.HighOverhead = d.OverheadRatio > 0.1
	return d
}
