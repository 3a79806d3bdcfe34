package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/reliefconnect/internal/embedder"
	"github.com/54b3r/reliefconnect/internal/indexsync"
	"github.com/54b3r/reliefconnect/internal/rag"
	"github.com/54b3r/reliefconnect/internal/store"
)

// runtime bundles the components every data command needs: the record
// store, the embedder, the vector collections and the Syncer between them.
type runtime struct {
	log    *slog.Logger
	store  *store.SQLiteStore
	emb    rag.Embedder
	cols   rag.Collections
	qdrant *rag.QdrantCollections // nil with VECTOR_BACKEND=memory
	syncer *indexsync.Syncer

	closers []func() error
}

// openRuntime builds the shared components from the environment. reg
// receives the sync metrics; nil leaves them unregistered.
func openRuntime(log *slog.Logger, reg prometheus.Registerer) (_ *runtime, err error) {
	rt := &runtime{log: log}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	dbPath := os.Getenv("RELIEF_DB")
	if dbPath == "" {
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	rt.store = st
	rt.closers = append(rt.closers, st.Close)
	log.Info("store opened", slog.String("path", dbPath))

	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err
	}
	emb, closeEmb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	rt.emb = emb
	rt.closers = append(rt.closers, closeEmb)
	log.Info("embedder initialised",
		slog.String("provider", embedder.Backend()),
		slog.Bool("cache", os.Getenv("RELIEF_EMBED_CACHE") != ""),
	)

	switch backend := getEnvOrDefault("VECTOR_BACKEND", "qdrant"); backend {
	case "memory":
		rt.cols = rag.NewMemoryCollections()
		log.Warn("vector index is in-memory and will not survive a restart")
	case "qdrant":
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		qc, err := rag.NewQdrantCollections(&rag.QdrantConfig{
			Host:       host,
			Port:       port,
			VectorSize: uint64(embedder.DefaultDimensions(embedder.Backend())), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		rt.cols = qc
		rt.qdrant = qc
		log.Info("qdrant connected", slog.String("host", host), slog.Int("port", port))
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q (valid: qdrant, memory)", backend)
	}
	rt.closers = append(rt.closers, rt.cols.Close)

	var metrics *indexsync.Metrics
	if reg != nil {
		metrics = indexsync.NewMetrics(reg)
	}
	rt.syncer, err = indexsync.NewSyncer(indexsync.SyncerConfig{
		Embedder:          rt.emb,
		Collections:       rt.cols,
		ProductCollection: os.Getenv("QDRANT_PRODUCT_COLLECTION"),
		OrderCollection:   os.Getenv("QDRANT_ORDER_COLLECTION"),
		Journal:           rt.store,
		Metrics:           metrics,
		Logger:            log,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// Close releases everything openRuntime acquired, newest first.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
