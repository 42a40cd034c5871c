// Package main provides the entry point for the cidx CLI.
package main

import (
	"fmt"
	"os"

	"github.com/jsbattig/code-indexer-sub029/cmd/cidx/cmd"
	"github.com/jsbattig/code-indexer-sub029/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
		os.Exit(1)
	}
}
