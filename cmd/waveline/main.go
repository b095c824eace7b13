// Package main provides the entry point for the waveline CLI.
package main

import (
	"fmt"
	"os"

	"github.com/waveline-ai/waveline/cmd/waveline/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
