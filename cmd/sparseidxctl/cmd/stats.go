package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/myscale/sparse-index/pkg/sparseindex"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the currently committed opstamp and segment count",
	RunE: func(c *cobra.Command, args []string) error {
		r, err := sparseindex.LoadIndexReader(indexPath)
		if err != nil {
			return err
		}
		defer r.FreeIndexReader()

		fmt.Printf("path:     %s\n", indexPath)
		fmt.Printf("opstamp:  %d\n", r.Opstamp())
		fmt.Printf("segments: %d\n", r.SegmentCount())
		fmt.Printf("rows:     %s\n", humanize.Comma(int64(r.VectorCount())))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
