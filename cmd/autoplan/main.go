// Package main provides the entry point for the autoplan CLI.
package main

import (
	"fmt"
	"os"

	"github.com/osama-ammar/ray-scripts/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
