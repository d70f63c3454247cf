// Package main provides the entry point for the repovault CLI.
package main

import (
	"os"

	"github.com/randalmurphal/repovault/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
