package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/facesweep/internal/store"
	"github.com/andresmejia3/facesweep/internal/types"
	"github.com/andresmejia3/facesweep/internal/utils"
	"github.com/andresmejia3/facesweep/internal/vision"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyRun   string
	historyKnown string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect match runs stored in the ledger",
	Long: `Without flags, lists recent runs. --run shows the per-image outcomes of one
run and --known lists earlier runs that searched for the face in the given image.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		db, err := openStore(cmd.Context())
		if err != nil {
			utils.ShowError("Run ledger unavailable", err, nil)
			return err
		}
		switch {
		case historyRun != "":
			return runShowRun(cmd.Context(), db, historyRun)
		case historyKnown != "":
			return runFindFace(cmd.Context(), db, historyKnown)
		default:
			return runListRuns(cmd.Context(), db, historyLimit)
		}
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the outcomes of a run ID")
	historyCmd.Flags().StringVarP(&historyKnown, "known", "k", "", "List runs that searched for the face in this image")
	rootCmd.AddCommand(historyCmd)
}

func runListRuns(ctx context.Context, db *store.Store, limit int) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		utils.ShowError("Failed to list runs", err, nil)
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}
	writeRuns(os.Stdout, runs, nil)
	return nil
}

func runShowRun(ctx context.Context, db *store.Store, raw string) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.ShowError("Invalid run ID", err, nil)
		return err
	}
	run, ok, err := db.GetRun(ctx, id)
	if err != nil {
		utils.ShowError("Failed to load run", err, nil)
		return err
	}
	if !ok {
		fmt.Printf("❌ No run with ID %s.\n", id)
		return nil
	}
	outcomes, err := db.RunOutcomes(ctx, id)
	if err != nil {
		utils.ShowError("Failed to load outcomes", err, nil)
		return err
	}

	st := run.Stats
	fmt.Printf("Run %s (%s)\n", run.ID, run.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("  known:    %s\n  images:   %s\n", run.KnownPath, run.ImagesDir)
	fmt.Printf("  plan:     %d workers, chunk %d (%s)\n", st.Plan.Workers, st.Plan.ChunkSize, st.Plan.Strategy)
	fmt.Printf("  result:   %d matched, %d not matched, %d failed in %s\n\n",
		st.Matched, st.NotMatched, st.Failed, utils.FormatDuration(st.TotalTime))
	writeOutcomes(os.Stdout, outcomes)
	return nil
}

func runFindFace(ctx context.Context, db *store.Store, imagePath string) error {
	fmt.Fprintln(os.Stderr, "🚀 Starting recognition engine...")
	// We use ID 0 for this ad-hoc engine
	e, err := engineFactory(Cfg)(0)
	if err != nil {
		utils.ShowError("Failed to start engine", err, nil)
		return err
	}
	defer e.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	enc, err := vision.LoadKnown(e, imagePath)
	if err != nil {
		utils.ShowError(setupErrorContext(err), err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🗄️  Searching ledger...")
	matches, err := db.FindRunsForFace(ctx, enc, Cfg.Tolerance, historyLimit)
	if err != nil {
		utils.ShowError("Ledger search failed", err, nil)
		return err
	}
	if len(matches) == 0 {
		fmt.Println("❌ No earlier runs searched for this face.")
		return nil
	}

	runs := make([]store.Run, len(matches))
	dists := make([]float64, len(matches))
	for i, m := range matches {
		runs[i], dists[i] = m.Run, m.Distance
	}
	fmt.Printf("✅ Found %d run(s) for this face:\n\n", len(matches))
	writeRuns(os.Stdout, runs, dists)
	return nil
}

// writeRuns prints one row per run. dists, when given, adds a distance column.
func writeRuns(out io.Writer, runs []store.Run, dists []float64) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	header, rule := "ID\tCREATED\tKNOWN\tIMAGES\tMATCHED\tFAILED\tWORKERS\tTIME", "--\t-------\t-----\t------\t-------\t------\t-------\t----"
	if dists != nil {
		header, rule = header+"\tDISTANCE", rule+"\t--------"
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, rule)
	for i, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), filepath.Base(r.KnownPath),
			r.Stats.TotalImages, r.Stats.Matched, r.Stats.Failed, r.Stats.Plan.Workers,
			utils.FormatDuration(r.Stats.TotalTime))
		if dists != nil {
			fmt.Fprintf(w, "\t%.3f", dists[i])
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

func writeOutcomes(out io.Writer, outcomes []types.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILE\tSTATUS\tFACES\tDISTANCE\tDETAIL")
	fmt.Fprintln(w, "----\t------\t-----\t--------\t------")
	for _, o := range outcomes {
		detail := o.Output
		if o.Reason != nil {
			detail = o.Reason.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.3f\t%s\n", o.Ref.Name, o.Status, o.Faces, o.Distance, detail)
	}
	w.Flush()
}
