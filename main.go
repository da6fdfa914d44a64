// ./main.go
package main

import (
	"github.com/mobhervr3-png/chinak2/cmd"
)

// main is the entry point for the chinak2 scraper.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
