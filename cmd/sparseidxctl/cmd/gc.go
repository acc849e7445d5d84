package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/pkg/sparseindex"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Force an immediate garbage-collection pass",
	RunE: func(c *cobra.Command, args []string) error {
		w, err := sparseindex.OpenIndex(indexPath, config.Default(), nil)
		if err != nil {
			return err
		}
		defer w.FreeIndexWriter()

		if err := w.GarbageCollect(); err != nil {
			return err
		}
		fmt.Printf("garbage collected %s\n", indexPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
}
