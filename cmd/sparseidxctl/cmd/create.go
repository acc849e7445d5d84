package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/pkg/sparseindex"
)

var (
	createStorage   string
	createWeight    string
	createExtended  bool
	createQuantized bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create (or reopen) an index directory",
	RunE: func(c *cobra.Command, args []string) error {
		settings := sparseindex.Settings{
			Storage:   sparseindex.StorageKind(createStorage),
			Weight:    sparseindex.WeightType(createWeight),
			Extended:  createExtended,
			Quantized: createQuantized,
		}
		w, err := sparseindex.CreateIndex(indexPath, settings, config.Default(), nil)
		if err != nil {
			return err
		}
		defer w.FreeIndexWriter()
		fmt.Printf("created index at %s (storage=%s weight=%s extended=%v quantized=%v)\n",
			indexPath, createStorage, createWeight, createExtended, createQuantized)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createStorage, "storage", "mmap", "storage kind: ram, mmap, compressed_mmap")
	createCmd.Flags().StringVar(&createWeight, "weight", "f32", "weight type: f32, f16, u8")
	createCmd.Flags().BoolVar(&createExtended, "extended", false, "use extended posting elements (WAND max_next_weight)")
	createCmd.Flags().BoolVar(&createQuantized, "quantized", false, "quantize postings to u8 storage")
	rootCmd.AddCommand(createCmd)
}
