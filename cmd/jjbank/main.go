// Command jjbank runs the personal-banking web service.
package main

import (
	"fmt"
	"os"

	"github.com/patric-chuzhbe/jjbank/internal/app"
)

var (
	buildVersion = "N/A"
	buildDate    = "N/A"
	buildCommit  = "N/A"
)

func run() int {
	fmt.Printf("Build version: %s\nBuild date: %s\nBuild commit: %s\n", buildVersion, buildDate, buildCommit)

	theApp, err := app.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing the app:", err)
		return 1
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error running the app:", err)
		return 1
	}

	return 0
}

// main keeps no defers of its own: run owns them, so they execute before
// the process exits.
func main() {
	os.Exit(run())
}
