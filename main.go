// Package main is the entry point for the timelapse recorder.
package main

import (
	"fmt"
	"os"

	"github.com/timelapse/timelapse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
