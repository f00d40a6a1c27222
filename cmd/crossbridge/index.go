package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crossbridge/internal/impact"
)

var (
	indexRun   string
	factSource string
	factConf   float64
	factFormat string
)

var indexCmd = &cobra.Command{
	Use:   "index --run <id>",
	Short: "Record impact facts from a run's mappings",
	Long: `Record one fact per (test, page object) and (test, code path) of every
mapping in a run. Facts use the configured mapping source and its default
confidence, and are kept in the configured fact store.

Examples:
  crossbridge index --run 2024-01-01`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var factCmd = &cobra.Command{
	Use:   "fact <test_id> <element>",
	Short: "Record one impact fact",
	Long: `Record that a test exercises a code element. Recording the same
(test, element, source) again keeps the higher confidence.

Examples:
  crossbridge fact t1 LoginPage --source manual
  crossbridge fact t1 "pages/login.py::LoginPage.login" --source coverage --confidence 0.9`,
	Args: cobra.ExactArgs(2),
	RunE: runFact,
}

func init() {
	indexCmd.Flags().StringVar(&indexRun, "run", "", "Run id (required)")
	_ = indexCmd.MarkFlagRequired("run")

	factCmd.Flags().StringVar(&factSource, "source", string(impact.SourceManual), "Fact source")
	factCmd.Flags().Float64Var(&factConf, "confidence", -1, "Confidence in [0, 1] (default: the source's configured default)")
	factCmd.Flags().StringVar(&factFormat, "format", "human", "Output format (json, human)")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(factCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.engine.IndexRun(cmd.Context(), indexRun)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d facts from run %s\n", n, indexRun)
	return nil
}

func runFact(cmd *cobra.Command, args []string) error {
	source, err := impact.ParseSource(factSource)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.engine.RecordFact(cmd.Context(), args[0], args[1], source, factConf); err != nil {
		return err
	}
	f, _ := s.engine.Index().Get(args[0], args[1], source)
	if OutputFormat(factFormat) == FormatHuman {
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s, %v)\n", f.TestID, f.Element, f.Source, f.Confidence)
		return nil
	}
	return writeResponse(cmd.OutOrStdout(), f, OutputFormat(factFormat))
}
