// Uptodate decides whether declared tasks need to run by comparing their
// input and output files against the last successful execution.
package main

import (
	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/cli"
)

func main() {
	cli.Execute()
}
