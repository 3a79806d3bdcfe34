package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/logging"
	"github.com/54b3r/reliefconnect/internal/search"
)

// NewSearchCmd constructs the `relief search` command, which runs a
// semantic product search against the vector index.
func NewSearchCmd() *cobra.Command {
	var topK int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search products by meaning",
		Long: `Embed the query and return the closest products from the vector index,
most relevant first.

Examples:
  relief search "need clean water"
  relief search "shelter for a family of five" --top-k 10 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			rt, err := openRuntime(log, nil)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer func() { _ = rt.Close() }()

			ps, err := search.NewProductSearch(rt.emb, rt.cols, rt.syncer.CollectionName(catalog.KindProduct), log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			hits, err := ps.Retrieve(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if hits == nil {
					hits = []catalog.ProductHit{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}
			if len(hits) == 0 {
				fmt.Fprintln(out, "No matching products found.")
				return nil
			}
			for i, h := range hits {
				fmt.Fprintf(out, "%2d. %-30s %-12s qty=%-5d score=%.3f  (%s)\n",
					i+1, h.Name, h.Category, h.Quantity, h.Score, h.ID)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", search.DefaultTopK, "Maximum number of products to return")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}
