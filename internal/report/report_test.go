package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/andresmejia3/facesweep/internal/planner"
	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	sp := Compare(10*time.Second, 2500*time.Millisecond, 4)
	assert.InDelta(t, 4.0, sp.Factor, 1e-9)
	assert.InDelta(t, 100.0, sp.Efficiency, 1e-9)
	assert.Equal(t, 7500*time.Millisecond, sp.TimeSaved)
	assert.Equal(t, time.Duration(0), sp.Overhead)

	sp = Compare(10*time.Second, 5*time.Second, 4)
	assert.InDelta(t, 2.0, sp.Factor, 1e-9)
	assert.InDelta(t, 50.0, sp.Efficiency, 1e-9)
	assert.Equal(t, 10*time.Second, sp.Overhead)
}

func TestCompareZeroParallel(t *testing.T) {
	assert.Equal(t, Speedup{}, Compare(10*time.Second, 0, 4))
}

func TestRate(t *testing.T) {
	cases := []struct {
		eff  float64
		want string
	}{
		{100, "excellent"},
		{80, "excellent"},
		{79.9, "good"},
		{60, "good"},
		{40, "fair"},
		{39.9, "poor - consider optimization"},
		{0, "poor - consider optimization"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Rate(c.eff), "efficiency %.1f", c.eff)
	}
}

func TestTally(t *testing.T) {
	s := Stats{Matched: 99}.Tally([]types.Outcome{
		{Status: types.Matched},
		{Status: types.NotMatched},
		{Status: types.NotMatched},
		{Status: types.Failed},
	})
	assert.Equal(t, 4, s.TotalImages)
	assert.Equal(t, 1, s.Matched)
	assert.Equal(t, 2, s.NotMatched)
	assert.Equal(t, 1, s.Failed)
}

func TestThroughput(t *testing.T) {
	assert.Zero(t, Stats{TotalImages: 10}.Throughput())
	assert.InDelta(t, 5.0, Stats{TotalImages: 10, ProcessingTime: 2 * time.Second}.Throughput(), 1e-9)
}

func TestWrite(t *testing.T) {
	outcomes := []types.Outcome{
		{Ref: types.ImageRef{Name: "image_3.jpg"}, Status: types.Matched, Output: "out/detected_image_3.jpg"},
		{Ref: types.ImageRef{Name: "image_4.jpg"}, Status: types.NotMatched},
		{Ref: types.ImageRef{Name: "broken.png"}, Status: types.Failed, Reason: errors.New("bad header")},
	}
	s := Stats{
		LoadTime:       120 * time.Millisecond,
		ScanTime:       5 * time.Millisecond,
		ProcessingTime: 3 * time.Second,
		TotalTime:      125 * time.Second,
		Plan:           planner.Plan{Workers: 2, ChunkSize: 1, Strategy: planner.StrategyProportionalScaling},
		Cores:          8,
	}.Tally(outcomes)
	sp := Compare(6*time.Second, 3*time.Second, 2)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s, outcomes, &sp))
	out := buf.String()

	assert.Contains(t, out, "total images processed:  3")
	assert.Contains(t, out, "matches found:           1")
	assert.Contains(t, out, "throughput:              1.00 images/sec")
	assert.Contains(t, out, "speedup:                 2.00x faster")
	assert.Contains(t, out, "efficiency rating:       excellent")
	assert.Contains(t, out, "total execution time:  2m 5.00s")
	assert.Contains(t, out, "strategy: proportional scaling")
	assert.Contains(t, out, " 1. image_3.jpg -> out/detected_image_3.jpg")
	assert.Contains(t, out, "broken.png: bad header")
	assert.Contains(t, out, "utilization:             25.0%")
}

func TestWriteWithoutBaselineOrMatches(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Stats{}, nil, nil))
	out := buf.String()

	assert.NotContains(t, out, "speedup analysis")
	assert.NotContains(t, out, "timing analysis")
	assert.Contains(t, out, "no matches found in the dataset.")
	assert.Contains(t, out, "strategy: n/a")
}
