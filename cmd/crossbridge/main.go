package main

import (
	"errors"
	"fmt"
	"os"

	cberrors "crossbridge/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var be *cberrors.BridgeError
		if errors.As(err, &be) {
			for _, fix := range cberrors.GetSuggestedFixes(be.Code) {
				fmt.Fprintf(os.Stderr, "  hint: %s (%s)\n", fix.Description, fix.Command)
			}
		}
		os.Exit(1)
	}
}
