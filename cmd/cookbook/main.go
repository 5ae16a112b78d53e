// Package main provides the entry point for the cookbook service.
package main

import (
	"os"

	"github.com/kailas-cloud/cookbook/cmd/cookbook/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
