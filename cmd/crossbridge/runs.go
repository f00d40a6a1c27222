package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	runsFormat string
	exportRun  string
	exportOut  string
	importRun  string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var exportCmd = &cobra.Command{
	Use:   "export --run <id>",
	Short: "Write a run's records as a compressed bundle",
	Long: `Write every record of a run as a zstd-compressed JSON-lines bundle.

Examples:
  crossbridge export --run 2024-01-01 -o run.cbz`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <bundle>",
	Short: "Replay an exported bundle into the store",
	Long: `Replay an exported bundle. Records are merged into existing ones the same
way repeated saves are. Without --run the bundle's own run id is used.

Examples:
  crossbridge import run.cbz
  crossbridge import run.cbz --run restored`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	runsCmd.Flags().StringVar(&runsFormat, "format", "human", "Output format (json, human)")

	exportCmd.Flags().StringVar(&exportRun, "run", "", "Run id (required)")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default: stdout)")
	_ = exportCmd.MarkFlagRequired("run")

	importCmd.Flags().StringVar(&importRun, "run", "", "Import into this run instead")

	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.engine.Store().Runs(cmd.Context())
	if err != nil {
		return err
	}
	return writeResponse(cmd.OutOrStdout(), runs, OutputFormat(runsFormat))
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, cerr := os.Create(exportOut)
		if cerr != nil {
			return fmt.Errorf("create %s: %w", exportOut, cerr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		bw := bufio.NewWriter(f)
		defer func() {
			if ferr := bw.Flush(); ferr != nil && err == nil {
				err = ferr
			}
		}()
		w = bw
	}

	n, err := s.engine.Store().Export(cmd.Context(), exportRun, w)
	if err != nil {
		return err
	}
	s.logger.Info("Run exported", "run", exportRun, "records", n)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	runID, n, err := s.engine.Store().Import(cmd.Context(), bufio.NewReader(f), importRun)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records into run %s\n", n, runID)
	return nil
}
