// Package main provides the leapbuild CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapbuild/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
