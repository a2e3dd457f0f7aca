// Package main provides the entry point for the collabd server.
package main

import (
	"os"

	"github.com/collabhq/collabd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
