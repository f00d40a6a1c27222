package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crossbridge/internal/staticscan"
)

var (
	scanSuffixes []string
	scanKnown    []string
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>...",
	Short: "Find page objects constructed in test sources",
	Long: `Parse Python and Java test sources and record a static_ast fact for every
page object a test function constructs. Python tests are functions named
test*, Java tests are methods annotated with @Test. Directories are scanned
concurrently.

A class is a page object when its name ends with one of --suffix (default
"Page") or is listed with --known.

Examples:
  crossbridge scan tests
  crossbridge scan src/test/java --suffix Page --suffix Screen`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanSuffixes, "suffix", nil, "Page object class name suffix (repeatable)")
	scanCmd.Flags().StringSliceVar(&scanKnown, "known", nil, "Page object class name (repeatable)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if !staticscan.IsAvailable() {
		return staticscan.ErrNoCGO
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.engine.Scan(cmd.Context(), staticscan.Options{Suffixes: scanSuffixes, Known: scanKnown}, args...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d static_ast facts\n", n)
	return nil
}
