// Package main is the entry point for the restreamarr application.
package main

import (
	"os"

	"github.com/restreamarr/restreamarr/cmd/restreamarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
