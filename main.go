// The main package for the cse-daily executable.
package main

import (
	"github.com/JakeFAU/cse-daily-fetcher/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
