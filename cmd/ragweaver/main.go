// Package main provides the entry point for the ragweaver CLI.
package main

import (
	"os"

	"github.com/ragweaver/ragweaver/cmd/ragweaver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
