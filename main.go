// tablerag - command-line client for the TableRAG spreadsheet question-answering API.
//
// Build with: go build -ldflags "-X github.com/tablerag/tablerag-client/internal/version.Version=v0.3.0"
package main

import (
	"os"

	"github.com/tablerag/tablerag-client/internal/cli"
)

func main() {
	// cobra has already printed the error
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
