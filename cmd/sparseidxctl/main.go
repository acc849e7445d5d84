// Command sparseidxctl is the operator CLI for the sparse-vector
// inverted-index engine: create an index, insert rows from a JSONL file,
// commit, search, inspect segment stats, force a GC pass, and watch an
// index's commit activity live.
package main

import (
	"fmt"
	"os"

	"github.com/myscale/sparse-index/cmd/sparseidxctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sparseidxctl:", err)
		os.Exit(1)
	}
}
