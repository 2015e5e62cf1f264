package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tinytelemetry/sadcompare/internal/pipeline"
)

// Exit codes for different failure modes
const (
	ExitSuccess       = 0 // Every dataset processed and reported
	ExitDatasetFailed = 1 // One or more datasets failed; the rest were stored and reported
	ExitError         = 2 // Configuration or runtime error
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	err := execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var batchErr *pipeline.BatchError
	if errors.As(err, &batchErr) {
		return ExitDatasetFailed
	}
	return ExitError
}
