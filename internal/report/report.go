// Package report turns the timings and outcomes of a run into the
// performance summary printed at the end of `facesweep match`.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andresmejia3/facesweep/internal/planner"
	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/andresmejia3/facesweep/internal/utils"
)

const rule = "----------------------------------------------------------------------"

// Stats is the timing summary of one run. It is built once by the pipeline
// and only ever passed by value.
type Stats struct {
	LoadTime       time.Duration
	ScanTime       time.Duration
	ProcessingTime time.Duration
	TotalTime      time.Duration

	Plan        planner.Plan
	Cores       int
	TotalImages int
	Matched     int
	NotMatched  int
	Failed      int
}

// Tally fills the image counters of s from outcomes.
func (s Stats) Tally(outcomes []types.Outcome) Stats {
	s.TotalImages = len(outcomes)
	s.Matched, s.NotMatched, s.Failed = 0, 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case types.Matched:
			s.Matched++
		case types.NotMatched:
			s.NotMatched++
		case types.Failed:
			s.Failed++
		}
	}
	return s
}

// Throughput is images per second of processing time.
func (s Stats) Throughput() float64 {
	if s.ProcessingTime <= 0 {
		return 0
	}
	return float64(s.TotalImages) / s.ProcessingTime.Seconds()
}

// Speedup compares a parallel run with its serial baseline.
type Speedup struct {
	Serial     time.Duration
	Parallel   time.Duration
	Workers    int
	Factor     float64
	Efficiency float64 // percent
	Overhead   time.Duration
	TimeSaved  time.Duration
}

// Compare computes the speedup of parallel over serial with the given number
// of workers. A zero parallel time yields the zero Speedup.
func Compare(serial, parallel time.Duration, workers int) Speedup {
	if parallel <= 0 {
		return Speedup{}
	}
	sp := Speedup{
		Serial:    serial,
		Parallel:  parallel,
		Workers:   workers,
		Factor:    serial.Seconds() / parallel.Seconds(),
		Overhead:  parallel*time.Duration(workers) - serial,
		TimeSaved: serial - parallel,
	}
	if workers > 0 {
		sp.Efficiency = sp.Factor / float64(workers) * 100
	}
	return sp
}

// Rate buckets a parallel efficiency percentage.
func Rate(efficiency float64) string {
	switch {
	case efficiency >= 80:
		return "excellent"
	case efficiency >= 60:
		return "good"
	case efficiency >= 40:
		return "fair"
	default:
		return "poor - consider optimization"
	}
}

// Write renders the full run summary. sp may be nil when no serial baseline
// was measured.
func Write(w io.Writer, s Stats, outcomes []types.Outcome, sp *Speedup) error {
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s\n%s\n%s\n", rule, center("processing complete"), rule)

	b.WriteString("\nprocessing statistics:\n")
	fmt.Fprintf(&b, "  total images processed:  %d\n", s.TotalImages)
	fmt.Fprintf(&b, "  matches found:           %d\n", s.Matched)
	fmt.Fprintf(&b, "  failed:                  %d\n", s.Failed)
	if s.TotalImages > 0 {
		fmt.Fprintf(&b, "  match rate:              %.1f%%\n", float64(s.Matched)/float64(s.TotalImages)*100)
	}

	if s.ProcessingTime > 0 && s.TotalImages > 0 {
		b.WriteString("\ntiming analysis:\n")
		fmt.Fprintf(&b, "  parallel time:           %.3fs\n", s.ProcessingTime.Seconds())
		fmt.Fprintf(&b, "  avg per image:           %.3fs\n", s.ProcessingTime.Seconds()/float64(s.TotalImages))
		fmt.Fprintf(&b, "  throughput:              %.2f images/sec\n", s.Throughput())
	}

	if sp != nil && sp.Parallel > 0 {
		b.WriteString("\nspeedup analysis:\n")
		fmt.Fprintf(&b, "  serial time:             %.3fs\n", sp.Serial.Seconds())
		fmt.Fprintf(&b, "  parallel time:           %.3fs\n", sp.Parallel.Seconds())
		fmt.Fprintf(&b, "  speedup:                 %.2fx faster\n", sp.Factor)
		fmt.Fprintf(&b, "  parallel efficiency:     %.1f%%\n", sp.Efficiency)
		fmt.Fprintf(&b, "  time saved:              %.3fs\n", sp.TimeSaved.Seconds())
		fmt.Fprintf(&b, "  efficiency rating:       %s\n", Rate(sp.Efficiency))
	}

	fmt.Fprintf(&b, "\n%s\nperformance breakdown\n%s\n", rule, rule)
	fmt.Fprintf(&b, "known face loading:    %.3fs\n", s.LoadTime.Seconds())
	fmt.Fprintf(&b, "image folder scanning: %.3fs\n", s.ScanTime.Seconds())
	fmt.Fprintf(&b, "parallel processing:   %.3fs\n", s.ProcessingTime.Seconds())
	fmt.Fprintf(&b, "total execution time:  %s\n\n", utils.FormatDuration(s.TotalTime))

	fmt.Fprintf(&b, "worker configuration\n%s\n", rule)
	fmt.Fprintf(&b, "strategy: %s\n", orNA(s.Plan.Strategy))
	fmt.Fprintf(&b, "workers used: %d\n", s.Plan.Workers)
	fmt.Fprintf(&b, "chunk size: %d\n", s.Plan.ChunkSize)

	var matched, failed []types.Outcome
	for _, o := range outcomes {
		switch o.Status {
		case types.Matched:
			matched = append(matched, o)
		case types.Failed:
			failed = append(failed, o)
		}
	}
	if len(matched) > 0 {
		fmt.Fprintf(&b, "\nmatched files (%d):\n", len(matched))
		for i, o := range matched {
			fmt.Fprintf(&b, "  %2d. %s", i+1, o.Ref.Name)
			if o.Output != "" {
				fmt.Fprintf(&b, " -> %s", o.Output)
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("\nno matches found in the dataset.\n")
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nfailed files (%d):\n", len(failed))
		for _, o := range failed {
			fmt.Fprintf(&b, "  %s: %v\n", o.Ref.Name, o.Reason)
		}
	}

	if s.Cores > 0 {
		b.WriteString("\nsystem information:\n")
		fmt.Fprintf(&b, "  cpu cores available:     %d\n", s.Cores)
		fmt.Fprintf(&b, "  cpu cores used:          %d\n", s.Plan.Workers)
		fmt.Fprintf(&b, "  utilization:             %.1f%%\n", float64(s.Plan.Workers)/float64(s.Cores)*100)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func center(s string) string {
	pad := (len(rule) - len(s)) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
