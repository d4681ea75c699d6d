package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"text/tabwriter"

	"github.com/andresmejia3/facesweep/internal/planner"
	"github.com/andresmejia3/facesweep/internal/utils"
	"github.com/spf13/cobra"
)

var planCores int

// defaultPlanSizes covers one dataset from each tier.
var defaultPlanSizes = []int{5, 25, 100, 500, 2000}

var planCmd = &cobra.Command{
	Use:   "plan [sizes...]",
	Short: "Show how the worker pool is sized for different dataset sizes",
	Run: func(cmd *cobra.Command, args []string) {
		sizes, err := parseSizes(args)
		if err != nil {
			utils.Die("Invalid dataset size", err, nil)
		}
		cores := planCores
		if cores <= 0 {
			cores = runtime.NumCPU()
		}
		printPlanTable(sizes, cores)
	},
}

func init() {
	planCmd.Flags().IntVarP(&planCores, "cores", "c", 0, "CPU cores to plan for (default: all)")
	rootCmd.AddCommand(planCmd)
}

func parseSizes(args []string) ([]int, error) {
	if len(args) == 0 {
		return defaultPlanSizes, nil
	}
	sizes := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%q is not a non-negative integer", a)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func printPlanTable(sizes []int, cores int) {
	fmt.Printf("Worker allocation for %d CPU cores:\n\n", cores)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "IMAGES\tTIER\tWORKERS\tCHUNK\tCHUNKS\tOVERHEAD\tSTRATEGY")
	fmt.Fprintln(w, "------\t----\t-------\t-----\t------\t--------\t--------")
	for _, n := range sizes {
		p := planner.New(n, cores)
		if p.IsZero() {
			fmt.Fprintf(w, "%d\t%s\t-\t-\t-\t-\tnothing to do\n", n, planner.Tier(n))
			continue
		}
		d := planner.Analyze(n, p)
		overhead := fmt.Sprintf("%.2f%%", d.OverheadRatio*100)
		if d.HighOverhead {
			overhead += " ⚠️"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n", n, planner.Tier(n), p.Workers, p.ChunkSize, d.TotalChunks, overhead, p.Strategy)
	}
	w.Flush()
}
