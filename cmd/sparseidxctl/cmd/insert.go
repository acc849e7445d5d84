package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/myscale/sparse-index/internal/config"
	"github.com/myscale/sparse-index/pkg/sparseindex"
)

var insertFile string

type insertRow struct {
	RowId    uint32 `json:"row_id"`
	Elements []struct {
		DimId  uint32  `json:"dim_id"`
		Weight float32 `json:"weight"`
	} `json:"elements"`
}

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert rows from a JSONL file, one {row_id, elements} object per line",
	RunE: func(c *cobra.Command, args []string) error {
		f, err := os.Open(insertFile)
		if err != nil {
			return err
		}
		defer f.Close()

		w, err := sparseindex.OpenIndex(indexPath, config.Default(), nil)
		if err != nil {
			return err
		}
		defer w.FreeIndexWriter()

		ctx := context.Background()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		count := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var row insertRow
			if err := jsoniter.Unmarshal(line, &row); err != nil {
				return fmt.Errorf("parse line %d: %w", count+1, err)
			}
			elems := make([]sparseindex.Element, len(row.Elements))
			for i, e := range row.Elements {
				elems[i] = sparseindex.Element{DimId: e.DimId, Weight: e.Weight}
			}
			if err := w.InsertSparseVector(ctx, row.RowId, elems); err != nil {
				return err
			}
			count++
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		fmt.Printf("inserted %d rows into %s\n", count, indexPath)
		return nil
	},
}

func init() {
	insertCmd.Flags().StringVar(&insertFile, "file", "", "JSONL file of rows to insert")
	insertCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(insertCmd)
}
