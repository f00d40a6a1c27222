package main

import (
	"github.com/spf13/cobra"
)

var (
	coverageRun    string
	coverageFormat string
	findRun        string
	findFormat     string
)

var coverageCmd = &cobra.Command{
	Use:   "coverage --run <id>",
	Short: "Report how much of a run's tests map to code",
	Args:  cobra.NoArgs,
	RunE:  runCoverage,
}

var findCmd = &cobra.Command{
	Use:   "find <code_path>",
	Short: "Find stored tests whose mapping contains a code path",
	Long: `Search stored mappings for a code path. A file path matches every code
path inside that file. Without --run every run is searched, bounded by
impact.scanTimeoutMs.

Examples:
  crossbridge find "pages/login_page.py::LoginPage.login"
  crossbridge find pages/login_page.py --run 2024-01-01`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	coverageCmd.Flags().StringVar(&coverageRun, "run", "", "Run id (required)")
	coverageCmd.Flags().StringVar(&coverageFormat, "format", "human", "Output format (json, human)")
	_ = coverageCmd.MarkFlagRequired("run")

	findCmd.Flags().StringVar(&findRun, "run", "", "Restrict the search to one run")
	findCmd.Flags().StringVar(&findFormat, "format", "human", "Output format (json, human)")

	rootCmd.AddCommand(coverageCmd)
	rootCmd.AddCommand(findCmd)
}

func runCoverage(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.Coverage(cmd.Context(), coverageRun)
	if err != nil {
		return err
	}
	return writeResponse(cmd.OutOrStdout(), report, OutputFormat(coverageFormat))
}

func runFind(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	tests, err := s.engine.FindTests(cmd.Context(), args[0], findRun)
	if err != nil {
		return err
	}
	return writeResponse(cmd.OutOrStdout(), tests, OutputFormat(findFormat))
}
