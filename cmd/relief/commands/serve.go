package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/indexsync"
	"github.com/54b3r/reliefconnect/internal/logging"
	"github.com/54b3r/reliefconnect/internal/provider"
	"github.com/54b3r/reliefconnect/internal/recommend"
	"github.com/54b3r/reliefconnect/internal/search"
	"github.com/54b3r/reliefconnect/internal/server"
	"github.com/54b3r/reliefconnect/internal/tracing"
	"github.com/54b3r/reliefconnect/internal/version"
)

const (
	// queueDrainTimeout bounds how long shutdown waits for pending sync jobs.
	queueDrainTimeout = 30 * time.Second

	defaultJournalRetention = 7 * 24 * time.Hour
)

// NewServeCmd constructs the `relief serve` command, which starts the HTTP
// API with index sync, search and recommendations wired in.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ReliefConnect HTTP API",
		Long: `Start the ReliefConnect HTTP API.

Every product and order write is committed to the record store and then
mirrored into the vector index, asynchronously through a bounded queue
(RELIEF_SYNC_MODE=async, the default) or before the request returns
(RELIEF_SYNC_MODE=inline). Index failures never fail a write; they are
journaled and repaired by the reconciler (RELIEF_RECONCILE_INTERVAL or
POST /api/sync/reconcile).

POST /api/recommend works without a chat model (MODEL_PROVIDER unset) and
then answers with a plain listing of matching products.

Examples:
  relief serve
  relief serve --port 9090
  VECTOR_BACKEND=memory relief serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			log.Info("serve starting", slog.String("version", version.String()))

			// Langfuse tracing is opt-in; Setup is a no-op without keys.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			rt, err := openRuntime(log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() {
				if err := rt.Close(); err != nil {
					log.Warn("serve: close failed", slog.Any("error", err))
				}
			}()

			pruneJournal(ctx, rt, log)

			mode, err := indexsync.ParseMode(os.Getenv("RELIEF_SYNC_MODE"))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			var queue *indexsync.Queue
			switch mode {
			case indexsync.ModeInline:
				rt.store.AddHook(indexsync.NewInlineHook(rt.syncer))
			default:
				queue = indexsync.NewQueue(rt.syncer,
					getEnvInt("RELIEF_SYNC_QUEUE", indexsync.DefaultQueueCapacity),
					getEnvInt("RELIEF_SYNC_WORKERS", indexsync.DefaultQueueWorkers),
				)
				rt.store.AddHook(indexsync.NewQueuedHook(queue))
				defer func() {
					// ctx is already cancelled here; drain on a fresh deadline.
					drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queueDrainTimeout)
					defer cancel()
					if err := queue.Close(drainCtx); err != nil {
						log.Warn("serve: sync queue not drained", slog.Any("error", err))
					}
				}()
			}
			log.Info("index sync enabled", slog.String("mode", string(mode)))

			interval, err := getEnvDuration("RELIEF_RECONCILE_INTERVAL", 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			reconciler := indexsync.NewReconciler(rt.store, rt.syncer, interval)
			reconciler.Start(ctx)
			defer reconciler.Stop()
			if interval > 0 {
				log.Info("periodic reconcile enabled", slog.Duration("interval", interval))
			}

			products, err := search.NewProductSearch(rt.emb, rt.cols, rt.syncer.CollectionName(catalog.KindProduct), log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			chatModel, providerCfg, err := provider.NewFromEnv(ctx)
			switch {
			case errors.Is(err, provider.ErrNotConfigured):
				log.Info("chat model disabled, recommend answers with listings", slog.String("reason", "MODEL_PROVIDER not set"))
			case err != nil:
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			default:
				log.Info("provider initialised",
					slog.String("provider", string(providerCfg.Backend)),
					slog.String("model", providerCfg.ModelName()),
				)
			}

			assistant, err := recommend.New(recommend.Config{
				Model:            chatModel,
				Products:         products,
				TopK:             getEnvInt("RELIEF_RECOMMEND_TOP_K", 0),
				MaxContextTokens: getEnvInt("RELIEF_MAX_CONTEXT_TOKENS", 0),
				Logger:           log,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			deps := server.Deps{
				Records:     rt.store,
				Recommender: assistant,
				Journal:     rt.store,
				Reconciler:  reconciler,
			}
			if queue != nil {
				deps.Queue = queue
			}

			srv, err := server.New(deps, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   buildPingers(rt, chatModel, providerCfg),
				APIKey:    os.Getenv("RELIEF_API_KEY"),
				RateLimit: getEnvFloat("RELIEF_RATE_LIMIT", 0),
				RateBurst: getEnvInt("RELIEF_RATE_BURST", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", getEnvOrDefault("RELIEF_HOST", "127.0.0.1"), "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", getEnvInt("RELIEF_PORT", 8080), "TCP port to listen on")

	return cmd
}

// buildPingers returns the /api/ready probes in reporting order. The chat
// model costs tokens per probe and is only checked when
// RELIEF_READY_PROBE_MODEL=true.
func buildPingers(rt *runtime, chatModel model.BaseChatModel, providerCfg *provider.Config) []server.Pinger {
	pingers := []server.Pinger{
		server.NewStorePinger(rt.store),
		server.NewEmbedderPinger(rt.emb),
	}
	if rt.qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(rt.qdrant.Client()))
	}
	if chatModel != nil && os.Getenv("RELIEF_READY_PROBE_MODEL") == "true" {
		pingers = append(pingers, server.NewModelPinger(chatModel, string(providerCfg.Backend)))
	}
	return pingers
}

// pruneJournal drops sync journal rows older than RELIEF_JOURNAL_RETENTION.
// Failures are logged; the journal is diagnostic only.
func pruneJournal(ctx context.Context, rt *runtime, log *slog.Logger) {
	retention, err := getEnvDuration("RELIEF_JOURNAL_RETENTION", defaultJournalRetention)
	if err != nil {
		log.Warn("serve: invalid journal retention, skipping prune", slog.Any("error", err))
		return
	}
	if retention == 0 {
		return
	}
	n, err := rt.store.PruneSyncs(ctx, time.Now().Add(-retention))
	if err != nil {
		log.Warn("serve: journal prune failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		log.Info("sync journal pruned", slog.Int64("rows", n), slog.Duration("retention", retention))
	}
}
