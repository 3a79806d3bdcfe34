package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"go.etcd.io/bbolt"

	"github.com/54b3r/reliefconnect/internal/rag"
)

var bucketEmbeddings = []byte("embeddings")

// Cache is a rag.Embedder that remembers vectors in a bbolt file, keyed by
// model and exact input text. Only texts missing from the cache are sent to
// the wrapped embedder. Cache read and write failures are logged and
// bypassed; they never fail an Embed call.
type Cache struct {
	db    *bbolt.DB
	model string
	next  rag.Embedder
	log   *slog.Logger
}

// OpenCache opens (or creates) the cache file at path in front of next.
// model must identify the embedding model so vectors from different models
// never collide. A nil log uses slog.Default().
func OpenCache(path, model string, next rag.Embedder, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("embedder: open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEmbeddings)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("embedder: init cache bucket: %w", err)
	}
	return &Cache{db: db, model: model, next: next, log: log}, nil
}

// Embed returns cached vectors where available and embeds the rest.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([][]byte, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for i, k := range keys {
			if v := b.Get(k); v != nil {
				out[i] = decodeVector(v)
			}
		}
		return nil
	})
	if err != nil {
		c.log.Warn("embedder: cache read failed", slog.String("error", err.Error()))
	}

	var (
		missIdx   []int
		missTexts []string
	)
	for i, v := range out {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", len(missTexts), len(fresh))
	}
	for j, i := range missIdx {
		out[i] = fresh[j]
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for j, i := range missIdx {
			if len(fresh[j]) == 0 {
				continue
			}
			if err := b.Put(keys[i], encodeVector(fresh[j])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.log.Warn("embedder: cache write failed", slog.String("error", err.Error()))
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n
}

// Close releases the cache file.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return sum[:]
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
