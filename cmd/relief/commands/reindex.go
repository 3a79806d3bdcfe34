package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/indexsync"
	"github.com/54b3r/reliefconnect/internal/logging"
)

// NewReindexCmd constructs the `relief reindex` command, which runs one
// reconciler pass: every live record is re-upserted and index entries for
// deleted records are removed.
func NewReindexCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from the record store",
		Long: `Re-upsert every product and order into the vector index and delete
index entries whose record no longer exists.

Use it after switching embedding models, after an outage of the embedder
or vector store, or to build the index for data imported with --no-index.
With RELIEF_EMBED_CACHE set, unchanged records skip the embedder.

Examples:
  relief reindex
  relief reindex --kind product`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			kinds, err := parseKinds(kind)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}

			rt, err := openRuntime(log, nil)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			defer func() { _ = rt.Close() }()

			bars := make(map[catalog.Kind]*progressbar.ProgressBar, len(kinds))
			progress := func(k catalog.Kind, done, total int) {
				bar, ok := bars[k]
				if !ok {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionEnableColorCodes(true),
						progressbar.OptionShowBytes(false),
						progressbar.OptionSetWidth(40),
						progressbar.OptionShowCount(),
						progressbar.OptionSetDescription(fmt.Sprintf("[cyan]Reindexing %ss[reset]", k)),
						progressbar.OptionOnCompletion(func() {
							fmt.Fprintln(os.Stderr)
						}),
					)
					bars[k] = bar
				}
				_ = bar.Set(done)
			}

			report, err := indexsync.NewReconciler(rt.store, rt.syncer, 0).Run(ctx, kinds, progress)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}

			out := cmd.OutOrStdout()
			names := make([]string, 0, len(report.Kinds))
			for k := range report.Kinds {
				names = append(names, string(k))
			}
			sort.Strings(names)
			for _, n := range names {
				kr := report.Kinds[catalog.Kind(n)]
				fmt.Fprintf(out, "%-8s live=%d synced=%d skipped=%d failed=%d orphans=%d removed=%d\n",
					n, kr.Live, kr.Synced, kr.Skipped, kr.Failed, kr.Orphans, kr.Removed)
			}
			fmt.Fprintf(out, "Done in %dms\n", report.DurationMs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Only reindex this record kind (product, order)")

	return cmd
}

// parseKinds maps the --kind flag to the kinds to reconcile. Empty means all.
func parseKinds(s string) ([]catalog.Kind, error) {
	switch catalog.Kind(s) {
	case "":
		return []catalog.Kind{catalog.KindProduct, catalog.KindOrder}, nil
	case catalog.KindProduct, catalog.KindOrder:
		return []catalog.Kind{catalog.Kind(s)}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q (valid: product, order)", s)
	}
}
