package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/54b3r/reliefconnect/internal/indexsync"
	"github.com/54b3r/reliefconnect/internal/ingestion"
	"github.com/54b3r/reliefconnect/internal/logging"
)

// NewImportCmd constructs the `relief import` command, which loads seed
// documents into the record store and indexes every record it writes.
func NewImportCmd() *cobra.Command {
	var files []string
	var noIndex bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import products and orders from YAML or JSON seed files",
		Long: `Load products and orders from seed documents into the record store.

Each --file is a local path, a doublestar glob (seed/**/*.yaml) or an
http(s) URL. Files ending in .json are read as JSON, everything else as
YAML. A document has top-level "products" and "orders" lists.

Records are upserted by id, so importing the same file twice is safe.
Each record is indexed as it is written; with --no-index only the store
is touched and 'relief reindex' can build the index later.

Examples:
  relief import --file seed/products.yaml
  relief import --file 'seed/**/*.yaml' --file https://example.org/orders.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(files) == 0 {
				return fmt.Errorf("import: at least one --file is required")
			}

			rt, err := openRuntime(log, nil)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			defer func() { _ = rt.Close() }()

			if !noIndex {
				rt.store.AddHook(indexsync.NewInlineHook(rt.syncer))
			}

			importer, err := ingestion.NewImporter(rt.store, ingestion.Config{Logger: log})
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			var bar *progressbar.ProgressBar
			progress := func(done, total int, label string) {
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionEnableColorCodes(true),
						progressbar.OptionShowBytes(false),
						progressbar.OptionSetWidth(40),
						progressbar.OptionShowCount(),
						progressbar.OptionSetDescription("[cyan]Importing[reset]"),
						progressbar.OptionOnCompletion(func() {
							fmt.Fprintln(os.Stderr)
						}),
					)
				}
				_ = bar.Set(done)
			}

			res, err := importer.Import(ctx, files, progress)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d products and %d orders from %d sources (%d failed)\n",
				res.Products, res.Orders, res.Sources, res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e)
			}
			if counts, err := rt.store.SyncCounts(ctx); err == nil {
				log.Info("sync journal totals", slog.Any("outcomes", counts))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Seed file, glob or URL (repeatable)")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Write records without indexing them")

	return cmd
}
