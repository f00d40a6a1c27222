package main

import (
	"github.com/spf13/cobra"
)

var resolveFormat string

var resolveCmd = &cobra.Command{
	Use:   "resolve <step>...",
	Short: "Resolve steps to page objects, methods and code paths",
	Long: `Resolve each step against the registered signals and print its mapping.
Nothing is stored.

Examples:
  crossbridge resolve "Given user logs in"
  crossbridge resolve "user logs in" "user opens the cart" --format=json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	mappings := s.engine.Resolver().ResolveBatch(args)
	if len(mappings) == 1 {
		return writeResponse(cmd.OutOrStdout(), mappings[0], OutputFormat(resolveFormat))
	}
	return writeResponse(cmd.OutOrStdout(), mappings, OutputFormat(resolveFormat))
}
