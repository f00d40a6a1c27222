package main

import (
	"github.com/spf13/cobra"
)

var (
	impactMin    float64
	impactFormat string
)

var impactCmd = &cobra.Command{
	Use:   "impact <element>",
	Short: "List tests impacted by a change to a code element",
	Long: `List the tests whose facts reference a code element, at or above a
confidence threshold. A bare name ("LoginPage") matches every element with
that simple name; a qualified one matches exactly first.

Examples:
  crossbridge impact LoginPage
  crossbridge impact "pages/login_page.py::LoginPage.login" --min-confidence 0.8`,
	Args: cobra.ExactArgs(1),
	RunE: runImpact,
}

var impactTestCmd = &cobra.Command{
	Use:   "test <test_id>",
	Short: "List the code elements a test touches",
	Args:  cobra.ExactArgs(1),
	RunE:  runImpactTest,
}

var impactStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the impact index",
	Args:  cobra.NoArgs,
	RunE:  runImpactStats,
}

func init() {
	impactCmd.PersistentFlags().StringVar(&impactFormat, "format", "human", "Output format (json, human)")
	impactCmd.Flags().Float64Var(&impactMin, "min-confidence", -1, "Minimum confidence (default: impact.minConfidence)")

	impactCmd.AddCommand(impactTestCmd)
	impactCmd.AddCommand(impactStatsCmd)
	rootCmd.AddCommand(impactCmd)
}

func runImpact(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	tests := s.engine.ImpactedBy(args[0], impactMin)
	s.logger.Debug("Impact query", "element", args[0], "tests", len(tests))
	return writeResponse(cmd.OutOrStdout(), tests, OutputFormat(impactFormat))
}

func runImpactTest(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	return writeResponse(cmd.OutOrStdout(), s.engine.TestsFor(args[0]), OutputFormat(impactFormat))
}

func runImpactStats(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	return writeResponse(cmd.OutOrStdout(), s.engine.Statistics(), OutputFormat(impactFormat))
}
