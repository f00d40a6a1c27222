package main

import (
	"github.com/spf13/cobra"

	"crossbridge/internal/impact"
	"crossbridge/internal/telemetry"
)

var (
	traceCatalog string
	traceSource  string
	traceFormat  string
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Work with runtime traces",
}

var traceIngestCmd = &cobra.Command{
	Use:   "ingest <hits.json>",
	Short: "Match runtime hits to known code elements and record facts",
	Long: `Read runtime hits (a JSON array or JSON lines of
{test_id, file_path, function, line_number}) and match each against the
catalog of known code elements. Exact, strong and weak matches are recorded
with their tier confidence; ambiguous and unmatched hits are only reported.

The catalog is a JSON array of code references or a text file with one code
path per line.

Examples:
  crossbridge trace ingest hits.jsonl --catalog elements.txt
  crossbridge trace ingest coverage.json --catalog elements.json --source coverage`,
	Args: cobra.ExactArgs(1),
	RunE: runTraceIngest,
}

func init() {
	traceIngestCmd.Flags().StringVar(&traceCatalog, "catalog", "", "Known code elements (required)")
	traceIngestCmd.Flags().StringVar(&traceSource, "source", string(impact.SourceRuntimeTrace), "Fact source")
	traceIngestCmd.Flags().StringVar(&traceFormat, "format", "human", "Output format (json, human)")
	_ = traceIngestCmd.MarkFlagRequired("catalog")

	traceCmd.AddCommand(traceIngestCmd)
	rootCmd.AddCommand(traceCmd)
}

func runTraceIngest(cmd *cobra.Command, args []string) error {
	source, err := impact.ParseSource(traceSource)
	if err != nil {
		return err
	}
	hits, err := telemetry.LoadHits(args[0])
	if err != nil {
		return err
	}
	catalog, err := telemetry.LoadCatalog(traceCatalog)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.IngestTrace(cmd.Context(), hits, catalog, source)
	if err != nil {
		return err
	}
	return writeResponse(cmd.OutOrStdout(), report, OutputFormat(traceFormat))
}
