package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cberrors "crossbridge/internal/errors"
)

var (
	recordTest   string
	recordRun    string
	recordMeta   []string
	recordFormat string
)

var recordCmd = &cobra.Command{
	Use:   "record --test <id> <step>...",
	Short: "Resolve a test's steps and save the mapping",
	Long: `Resolve every step of a test, fold the results into one mapping and save it
under a run. Saving a test that the run already holds merges the mappings.

Examples:
  crossbridge record --test "tests/test_login.py::test_login" "Given user logs in"
  crossbridge record --test t1 --run 2024-01-01 --meta browser=chrome --meta retries=2 "user logs in"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordTest, "test", "", "Test id (required)")
	recordCmd.Flags().StringVar(&recordRun, "run", "", "Run id (default: a new run)")
	recordCmd.Flags().StringArrayVar(&recordMeta, "meta", nil, "Metadata key=value (repeatable)")
	recordCmd.Flags().StringVar(&recordFormat, "format", "human", "Output format (json, human)")
	_ = recordCmd.MarkFlagRequired("test")
	rootCmd.AddCommand(recordCmd)
}

// RecordResponseCLI is what record prints
type RecordResponseCLI struct {
	RunID   string      `json:"run_id"`
	TestID  string      `json:"test_id"`
	Mapping interface{} `json:"mapping"`
}

func runRecord(cmd *cobra.Command, args []string) error {
	metadata, err := parseMetadata(recordMeta)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	runID, m, err := s.engine.RecordTest(cmd.Context(), recordTest, recordRun, args, metadata)
	if err != nil {
		return err
	}

	if OutputFormat(recordFormat) == FormatHuman {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s in run %s\n", recordTest, runID)
		return writeResponse(cmd.OutOrStdout(), m, FormatHuman)
	}
	return writeResponse(cmd.OutOrStdout(), &RecordResponseCLI{RunID: runID, TestID: recordTest, Mapping: m}, OutputFormat(recordFormat))
}

// parseMetadata turns key=value pairs into a map. Values that parse as
// numbers or booleans are stored as such.
func parseMetadata(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, cberrors.NewValidationError("metadata %q is not key=value", p)
		}
		out[strings.TrimSpace(k)] = parseScalar(v)
	}
	return out, nil
}

func parseScalar(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return v
}
