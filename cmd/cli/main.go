// Package main is the entry point for the coordctl CLI.
// The CLI is the terminal tool agents and operators use against the
// shared coordination root.
package main

import (
	"coordplane/cmd/cli/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
