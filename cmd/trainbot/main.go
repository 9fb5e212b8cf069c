// Trainbot - conversational editor for a training plan spreadsheet.
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("trainbot failed", "error", err)
		os.Exit(1)
	}
}
