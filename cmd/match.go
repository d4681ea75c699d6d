package cmd

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/andresmejia3/facesweep/internal/annotate"
	"github.com/andresmejia3/facesweep/internal/config"
	"github.com/andresmejia3/facesweep/internal/dispatch"
	"github.com/andresmejia3/facesweep/internal/pipeline"
	"github.com/andresmejia3/facesweep/internal/planner"
	"github.com/andresmejia3/facesweep/internal/report"
	"github.com/andresmejia3/facesweep/internal/store"
	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/andresmejia3/facesweep/internal/utils"
	"github.com/andresmejia3/facesweep/internal/vision"
	"github.com/andresmejia3/facesweep/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// matchFlags mirrors the config keys that can be overridden on the command line.
type matchFlags struct {
	Known         string
	Images        string
	Output        string
	Tolerance     float64
	Cores         int
	Engine        string
	Models        string
	CNN           bool
	PythonWorker  string
	SerialCompare bool
	Record        bool
}

var matchOpts matchFlags

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Search a folder of images for one known face",
	Long: `Loads the face in --known, scans --images for candidate photos and checks
every face in every photo against it on a pool of workers sized to the dataset.
Matches are copied to --output with the matching face boxed.`,
	Run: func(cmd *cobra.Command, args []string) {
		applyMatchFlags(cmd, Cfg, matchOpts)
		if err := validateMatchConfig(Cfg); err != nil {
			utils.Die("Invalid match options", err, nil)
		}
		runMatch(cmd, Cfg, matchOpts)
	},
}

func init() {
	matchCmd.Flags().StringVarP(&matchOpts.Known, "known", "k", "", "Image containing the face to look for")
	matchCmd.Flags().StringVarP(&matchOpts.Images, "images", "i", "", "Folder of candidate images (not recursive)")
	matchCmd.Flags().StringVarP(&matchOpts.Output, "output", "o", "output", "Folder for annotated copies of matched images")
	matchCmd.Flags().Float64VarP(&matchOpts.Tolerance, "tolerance", "t", vision.DefaultTolerance, "Maximum face distance counted as a match (lower is stricter)")
	matchCmd.Flags().IntVarP(&matchOpts.Cores, "cores", "c", 0, "CPU cores to plan for (default: all)")
	matchCmd.Flags().StringVarP(&matchOpts.Engine, "engine", "e", "dlib", "Recognition engine: dlib (in-process) or python (face_recognition subprocess)")
	matchCmd.Flags().StringVar(&matchOpts.Models, "models", "models", "Directory with the dlib model files")
	matchCmd.Flags().BoolVar(&matchOpts.CNN, "cnn", false, "Use the dlib CNN face detector (slower, more accurate)")
	matchCmd.Flags().StringVar(&matchOpts.PythonWorker, "python-worker", "python/worker.py", "Path to the Python worker script")
	matchCmd.Flags().BoolVarP(&matchOpts.SerialCompare, "serial-compare", "s", false, "Also run a single-worker pass and report the speedup")
	matchCmd.Flags().BoolVarP(&matchOpts.Record, "record", "r", false, "Store the run in the PostgreSQL ledger")

	rootCmd.AddCommand(matchCmd)
}

// applyMatchFlags copies explicitly set flags over the loaded config.
func applyMatchFlags(cmd *cobra.Command, cfg *config.Config, f matchFlags) {
	set := cmd.Flags().Changed
	if set("known") {
		cfg.Known = f.Known
	}
	if set("images") {
		cfg.Images = f.Images
	}
	if set("output") {
		cfg.Output = f.Output
	}
	if set("tolerance") {
		cfg.Tolerance = f.Tolerance
	}
	if set("cores") {
		cfg.Cores = f.Cores
	}
	if set("engine") {
		cfg.Engine = f.Engine
	}
	if set("models") {
		cfg.Models = f.Models
	}
	if set("cnn") {
		cfg.CNN = f.CNN
	}
	if set("python-worker") {
		cfg.PythonWorker = f.PythonWorker
	}
}

func validateMatchConfig(cfg *config.Config) error {
	if cfg.Known == "" {
		return errors.New("--known is required")
	}
	if cfg.Images == "" {
		return errors.New("--images is required")
	}
	if cfg.Output == "" {
		return errors.New("--output must not be empty")
	}
	if cfg.Tolerance <= 0 || cfg.Tolerance > 1.0 {
		return fmt.Errorf("tolerance must be between 0.0 and 1.0, got %f", cfg.Tolerance)
	}
	return cfg.Validate()
}

// engineFactory picks the recognition backend named in cfg.
func engineFactory(cfg *config.Config) vision.Factory {
	if cfg.Engine == "python" {
		return worker.Factory(cfg.PythonWorker)
	}
	return vision.DlibFactory(cfg.Models, cfg.CNN)
}

func runMatch(cmd *cobra.Command, cfg *config.Config, f matchFlags) {
	ctx := cmd.Context()
	factory := engineFactory(cfg)
	logf := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}

	cores := cfg.Cores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	fmt.Fprintf(os.Stderr, "🧠 Engine: %s | Tolerance: %.2f | CPU cores: %d\n", cfg.Engine, cfg.Tolerance, cores)

	var baseline *pipeline.Report
	if f.SerialCompare {
		fmt.Fprintln(os.Stderr, "🐢 Serial baseline (one worker, chunk size 1)...")
		rep, err := pipeline.Serial(ctx, cfg, factory, dispatch.Options{
			Logf:    func(string, ...any) {},
			OnStart: func(total int, _ planner.Plan) { startBar(total, "🐢 Serial") },
			OnOutcome: func(types.Outcome) {
				bar.Add(1)
			},
		})
		finishBar()
		if err != nil {
			// the parallel pass will surface the same setup error
			fmt.Fprintf(os.Stderr, "⚠️  Serial comparison failed: %v\n   Continuing with parallel processing...\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "   serial time: %.2fs, matches: %d\n", rep.Stats.ProcessingTime.Seconds(), rep.Stats.Matched)
			baseline = &rep
		}
	}

	fmt.Fprintln(os.Stderr, "🚀 Parallel processing...")
	rep, err := pipeline.Run(ctx, cfg, factory, dispatch.Options{
		Tolerance: cfg.Tolerance,
		Saver:     annotate.NewSaver(cfg.Output),
		Logf:      logf,
		OnStart: func(total int, p planner.Plan) {
			printAllocation(total, p)
			startBar(total, "🔍 Matching")
		},
		OnOutcome: func(o types.Outcome) {
			bar.Add(1)
		},
	})
	finishBar()
	if err != nil {
		utils.Die(setupErrorContext(err), err, nil)
	}
	if rep.Stats.TotalImages == 0 {
		fmt.Fprintln(os.Stderr, "📭 No images found to process.")
		return
	}
	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "🛑 Interrupted, remaining images were marked failed.")
	}

	var sp *report.Speedup
	if baseline != nil {
		s := report.Compare(baseline.Stats.ProcessingTime, rep.Stats.ProcessingTime, rep.Stats.Plan.Workers)
		sp = &s
	}
	if err := report.Write(os.Stdout, rep.Stats, rep.Outcomes, sp); err != nil {
		utils.Die("Failed to write report", err, nil)
	}

	if f.Record {
		recordRun(cmd, cfg, rep)
	}
	fmt.Fprintf(os.Stderr, "\n🏁 Done. %d of %d images matched.\n", rep.Stats.Matched, rep.Stats.TotalImages)
}

// recordRun stores the run in the ledger. Failures are warnings, the run
// itself already succeeded.
func recordRun(cmd *cobra.Command, cfg *config.Config, rep pipeline.Report) {
	db, err := openStore(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Run not recorded: %v\n", err)
		return
	}
	id, err := db.RecordRun(cmd.Context(), store.NewRun(cfg.Known, cfg.Images, rep.Known, cfg.Tolerance, rep.Stats), rep.Outcomes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Run not recorded: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "💾 Run recorded as %s\n", id)
}

func setupErrorContext(err error) string {
	switch {
	case errors.Is(err, vision.ErrKnownNotFound):
		return "Known face image not found"
	case errors.Is(err, vision.ErrNoKnownFace):
		return "No face detected in the known image"
	default:
		return "Match run failed"
	}
}

func printAllocation(total int, p planner.Plan) {
	d := planner.Analyze(total, p)
	fmt.Fprintf(os.Stderr, "⚙️  %s: %d workers, chunk size %d (%s)\n", planner.Tier(total), p.Workers, p.ChunkSize, p.Strategy)
	fmt.Fprintf(os.Stderr, "   %d chunks, %.2f per worker, ~%d images per worker", d.TotalChunks, d.AvgChunks, d.BaseImages)
	if d.RemainderImages > 0 {
		fmt.Fprintf(os.Stderr, " (%d take one more)", d.RemainderImages)
	}
	fmt.Fprintln(os.Stderr)
	if d.HighOverhead {
		fmt.Fprintf(os.Stderr, "⚠️  High process overhead (%.2f%%), consider fewer workers\n", d.OverheadRatio*100)
	}
}

var bar *progressbar.ProgressBar

func startBar(total int, desc string) {
	bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
}

func finishBar() {
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
		bar = nil
	}
}
