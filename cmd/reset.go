package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/facesweep/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB     bool
	resetOutput bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (run ledger, annotated output)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetOutput {
			resetDB = true
			resetOutput = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if Cfg.Database.URL == "" {
				fmt.Println("ℹ️  No database configured, skipping ledger.")
			} else if confirm(reader, "⚠️  Are you sure you want to DROP all ledger tables?") {
				db, err := openStore(cmd.Context())
				if err != nil {
					utils.Die("Failed to open database", err, nil)
				}
				fmt.Println("🗑️  Clearing Database...")
				if err := db.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetOutput {
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete all annotated images in %s?", Cfg.Output)) {
				fmt.Println("🗑️  Clearing Output Files...")
				removeDir(Cfg.Output)
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Clear the PostgreSQL run ledger")
	resetCmd.Flags().BoolVar(&resetOutput, "output", false, "Clear the annotated output folder")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if path == "" || path == "/" || path == "." {
		fmt.Fprintf(os.Stderr, "⚠️  Refusing to remove %q\n", path)
		return
	}
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
