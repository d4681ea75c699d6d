package cmd

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/facesweep/internal/config"
	"github.com/andresmejia3/facesweep/internal/planner"
	"github.com/andresmejia3/facesweep/internal/report"
	"github.com/andresmejia3/facesweep/internal/store"
	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/andresmejia3/facesweep/internal/vision"
	"github.com/spf13/cobra"
)

func TestValidateMatchConfig(t *testing.T) {
	valid := func() *config.Config {
		cfg := config.Default()
		cfg.Known = "me.jpg"
		cfg.Images = "photos"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "Valid options", mutate: func(*config.Config) {}},
		{name: "Missing known", mutate: func(c *config.Config) { c.Known = "" }, wantErr: true},
		{name: "Missing images", mutate: func(c *config.Config) { c.Images = "" }, wantErr: true},
		{name: "Empty output", mutate: func(c *config.Config) { c.Output = "" }, wantErr: true},
		{name: "Zero tolerance", mutate: func(c *config.Config) { c.Tolerance = 0 }, wantErr: true},
		{name: "Tolerance above one", mutate: func(c *config.Config) { c.Tolerance = 1.5 }, wantErr: true},
		{name: "Unknown engine", mutate: func(c *config.Config) { c.Engine = "opencv" }, wantErr: true},
		{name: "Python engine", mutate: func(c *config.Config) { c.Engine = "python" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := validateMatchConfig(cfg); (err != nil) != tt.wantErr {
				t.Errorf("validateMatchConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyMatchFlagsOnlyOverridesSetFlags(t *testing.T) {
	var f matchFlags
	c := &cobra.Command{Use: "match"}
	c.Flags().StringVarP(&f.Known, "known", "k", "", "")
	c.Flags().StringVarP(&f.Images, "images", "i", "", "")
	c.Flags().StringVarP(&f.Output, "output", "o", "output", "")
	c.Flags().Float64VarP(&f.Tolerance, "tolerance", "t", vision.DefaultTolerance, "")
	c.Flags().IntVarP(&f.Cores, "cores", "c", 0, "")
	c.Flags().StringVarP(&f.Engine, "engine", "e", "dlib", "")
	c.Flags().StringVar(&f.Models, "models", "models", "")
	c.Flags().BoolVar(&f.CNN, "cnn", false, "")
	c.Flags().StringVar(&f.PythonWorker, "python-worker", "python/worker.py", "")
	if err := c.Flags().Parse([]string{"-k", "flag.jpg", "--tolerance", "0.4"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Images = "from-file"
	cfg.Output = "from-env"
	applyMatchFlags(c, cfg, f)

	if cfg.Known != "flag.jpg" || cfg.Tolerance != 0.4 {
		t.Errorf("set flags not applied: %+v", cfg)
	}
	if cfg.Images != "from-file" || cfg.Output != "from-env" {
		t.Errorf("unset flags overrode config: %+v", cfg)
	}
}

func TestParseSizes(t *testing.T) {
	got, err := parseSizes(nil)
	if err != nil || !reflect.DeepEqual(got, defaultPlanSizes) {
		t.Errorf("parseSizes(nil) = %v, %v", got, err)
	}

	got, err = parseSizes([]string{"12", "0", "1000"})
	if err != nil || !reflect.DeepEqual(got, []int{12, 0, 1000}) {
		t.Errorf("parseSizes() = %v, %v", got, err)
	}

	for _, bad := range []string{"-1", "ten", "1.5"} {
		if _, err := parseSizes([]string{bad}); err == nil {
			t.Errorf("parseSizes(%q) expected error", bad)
		}
	}
}

func TestSetupErrorContext(t *testing.T) {
	if got := setupErrorContext(vision.ErrKnownNotFound); got != "Known face image not found" {
		t.Errorf("got %q", got)
	}
	if got := setupErrorContext(errors.New("boom")); got != "Match run failed" {
		t.Errorf("got %q", got)
	}
}

func TestWriteOutcomes(t *testing.T) {
	var buf bytes.Buffer
	writeOutcomes(&buf, []types.Outcome{
		{Ref: types.ImageRef{Name: "a.jpg"}, Status: types.Matched, Faces: 2, Distance: 0.3, Output: "out/detected_a.jpg"},
		{Ref: types.ImageRef{Name: "b.jpg"}, Status: types.Failed, Reason: errors.New("bad header")},
	})
	out := buf.String()
	for _, want := range []string{"matched", "out/detected_a.jpg", "failed", "bad header"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteRunsWithDistance(t *testing.T) {
	runs := []store.Run{{
		KnownPath: "/faces/me.jpg",
		Stats: report.Stats{
			TotalImages: 12, Matched: 2, TotalTime: 90 * time.Second,
			Plan: planner.Plan{Workers: 2, ChunkSize: 2},
		},
	}}
	var buf bytes.Buffer
	writeRuns(&buf, runs, []float64{0.123})
	out := buf.String()
	for _, want := range []string{"DISTANCE", "me.jpg", "1m 30.00s", "0.123"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
