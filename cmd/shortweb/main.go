package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	backend    string
	headless   bool
	outDir     string
	gifStrip   bool
	parallel   int
	sessionDB  string
	verbose    bool
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shortweb",
		Short: "Replay recorded browser shortcuts and collect what they extract",
		Long: `shortweb drives a real browser through a recorded list of steps
(open a page, click, type, upload, wait for navigation, read content)
and saves the text and images the steps extract.

Example:
  shortweb run flows/weather.yaml --out results -v`,
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <document>...",
		Short: "Run one or more action documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDocuments,
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "JSON config file")
	runCmd.Flags().StringVar(&backend, "backend", "", "Browser backend: rod, chromedp (default: from config)")
	runCmd.Flags().BoolVar(&headless, "headless", true, "Run the browser without a window")
	runCmd.Flags().StringVarP(&outDir, "out", "o", "", "Results directory (default: from config)")
	runCmd.Flags().BoolVar(&gifStrip, "gif", false, "Also write extracted images as a GIF strip")
	runCmd.Flags().IntVar(&parallel, "parallel", 1, "Documents to run at once")
	runCmd.Flags().StringVar(&sessionDB, "session", "", "SQLite file that keeps cookies between runs")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")

	validateCmd := &cobra.Command{
		Use:   "validate <document>...",
		Short: "Check that documents decode",
		Args:  cobra.MinimumNArgs(1),
		RunE:  validateDocuments,
	}

	describeCmd := &cobra.Command{
		Use:   "describe <document>",
		Short: "List the steps of a document",
		Args:  cobra.ExactArgs(1),
		RunE:  describeDocument,
	}

	rootCmd.AddCommand(runCmd, validateCmd, describeCmd)
	return rootCmd
}
