package cmd

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/charmbracelet/lipgloss"

	"github.com/myscale/sparse-index/pkg/sparseindex"
)

var (
	searchQuery string
	searchTopK  int
)

type queryElement struct {
	DimId  uint32  `json:"dim_id"`
	Weight float32 `json:"weight"`
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a top-K sparse similarity search",
	RunE: func(c *cobra.Command, args []string) error {
		var elems []queryElement
		if err := jsoniter.UnmarshalFromString(searchQuery, &elems); err != nil {
			return fmt.Errorf("parse --query: %w", err)
		}

		r, err := sparseindex.LoadIndexReader(indexPath)
		if err != nil {
			return err
		}
		defer r.FreeIndexReader()

		query := make([]sparseindex.Element, len(elems))
		for i, e := range elems {
			query[i] = sparseindex.Element{DimId: e.DimId, Weight: e.Weight}
		}

		results, err := r.SparseSearch(context.Background(), query, nil, false, searchTopK)
		if err != nil {
			return err
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("%-10s %s", "row_id", "score")))
		for _, row := range results {
			fmt.Printf("%-10d %f\n", row.RowId, row.Score)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchQuery, "query", "[]", `query elements as JSON: [{"dim_id":0,"weight":1.0}]`)
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 10, "number of results to return")
	rootCmd.AddCommand(searchCmd)
}
