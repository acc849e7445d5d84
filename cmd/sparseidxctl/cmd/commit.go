package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/pkg/sparseindex"
)

var commitPayload string

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Publish every row added since the last commit",
	RunE: func(c *cobra.Command, args []string) error {
		w, err := sparseindex.OpenIndex(indexPath, config.Default(), nil)
		if err != nil {
			return err
		}
		defer w.FreeIndexWriter()

		opstamp, err := w.CommitIndex(context.Background(), commitPayload)
		if err != nil {
			return err
		}
		fmt.Printf("committed %s at opstamp %d\n", indexPath, opstamp)
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVar(&commitPayload, "payload", "", "optional commit payload string")
	rootCmd.AddCommand(commitCmd)
}
