// Package ingestion imports product and order seed data into the record
// store. Records are written through the store so the registered change
// hooks index them exactly as they would index an API write.
//
// A source is either a local path or glob ("seeds/**/*.yaml") or an HTTP(S)
// URL. Files ending in .json are decoded as JSON with the API field names;
// everything else is decoded as YAML. Both share one layout:
//
//	products:
//	  - id: p1
//	    name: Water Filter
//	orders:
//	  - id: o1
//	    name: Ana
//	    address: 1 Main St
//	    phone: "555"
package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

// maxSeedBytes caps the size of a single remote seed document.
const maxSeedBytes = 32 << 20

// Seed is the decoded content of one seed document.
type Seed struct {
	Products []catalog.Product `json:"products" yaml:"products"`
	Orders   []catalog.Order   `json:"orders" yaml:"orders"`
}

// Writer persists seed records. *store.SQLiteStore satisfies it.
type Writer interface {
	SaveProduct(ctx context.Context, p *catalog.Product) error
	SaveOrder(ctx context.Context, o *catalog.Order) error
}

// Progress is called after each record is written. done counts records
// attempted so far out of total across all sources.
type Progress func(done, total int, label string)

// Result summarises an import run.
type Result struct {
	Sources  int      `json:"sources"`
	Products int      `json:"products"`
	Orders   int      `json:"orders"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Config holds the configuration for an Importer.
type Config struct {
	// HTTPTimeout is the timeout for each remote fetch. Defaults to 30s.
	HTTPTimeout time.Duration

	// UserAgent is sent with remote fetches.
	UserAgent string

	Logger *slog.Logger
}

// Importer loads seed documents and writes their records.
type Importer struct {
	writer     Writer
	cfg        Config
	httpClient *http.Client
}

// NewImporter constructs an Importer writing to w.
func NewImporter(w Writer, cfg Config) (*Importer, error) {
	if w == nil {
		return nil, fmt.Errorf("ingestion: writer must not be nil")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "reliefconnect/1.0 (seed import)"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Importer{
		writer:     w,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// Resolve expands sources into concrete locations. URLs pass through;
// local patterns are expanded with doublestar and sorted. A pattern that
// matches nothing is an error so typos do not import silently nothing.
func Resolve(sources []string) ([]string, error) {
	var out []string
	for _, src := range sources {
		if isURL(src) {
			out = append(out, src)
			continue
		}
		matches, err := doublestar.FilepathGlob(src)
		if err != nil {
			return nil, fmt.Errorf("ingestion: bad pattern %q: %w", src, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("ingestion: no files match %q", src)
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

// Load fetches and decodes every location.
func (im *Importer) Load(ctx context.Context, locations []string) ([]Seed, error) {
	seeds := make([]Seed, 0, len(locations))
	for _, loc := range locations {
		data, err := im.read(ctx, loc)
		if err != nil {
			return nil, fmt.Errorf("ingestion: read %s: %w", loc, err)
		}
		seed, err := Decode(loc, data)
		if err != nil {
			return nil, fmt.Errorf("ingestion: decode %s: %w", loc, err)
		}
		im.cfg.Logger.Debug("ingestion: loaded seed",
			slog.String("source", loc),
			slog.Int("products", len(seed.Products)),
			slog.Int("orders", len(seed.Orders)),
		)
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// Import resolves, loads and writes every record from sources. Invalid
// records are counted in Result.Failed and do not stop the run; source
// errors and context cancellation do.
func (im *Importer) Import(ctx context.Context, sources []string, progress Progress) (*Result, error) {
	if progress == nil {
		progress = func(int, int, string) {}
	}
	locations, err := Resolve(sources)
	if err != nil {
		return nil, err
	}
	seeds, err := im.Load(ctx, locations)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, s := range seeds {
		total += len(s.Products) + len(s.Orders)
	}

	res := &Result{Sources: len(locations)}
	done := 0
	fail := func(kind, id string, err error) {
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %v", kind, id, err))
		im.cfg.Logger.Warn("ingestion: record rejected",
			slog.String("kind", kind),
			slog.String("id", id),
			slog.Any("error", err),
		)
	}

	for _, s := range seeds {
		for i := range s.Products {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			p := &s.Products[i]
			if err := im.writer.SaveProduct(ctx, p); err != nil {
				fail("product", p.ID, err)
			} else {
				res.Products++
			}
			done++
			progress(done, total, p.Name)
		}
		for i := range s.Orders {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			o := &s.Orders[i]
			if err := im.writer.SaveOrder(ctx, o); err != nil {
				fail("order", o.ID, err)
			} else {
				res.Orders++
			}
			done++
			progress(done, total, o.ID)
		}
	}

	im.cfg.Logger.Info("ingestion: import complete",
		slog.Int("sources", res.Sources),
		slog.Int("products", res.Products),
		slog.Int("orders", res.Orders),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// Decode parses a seed document. name selects the format: a .json suffix
// means JSON, anything else YAML.
func Decode(name string, data []byte) (Seed, error) {
	var s Seed
	if isJSON(name) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return Seed{}, err
		}
		return s, nil
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, err
	}
	return s, nil
}

func (im *Importer) read(ctx context.Context, loc string) ([]byte, error) {
	if !isURL(loc) {
		return os.ReadFile(loc)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", im.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, application/yaml, text/yaml, text/plain")

	resp, err := im.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSeedBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isJSON(name string) bool {
	if isURL(name) {
		// Strip any query string before looking at the extension.
		if i := strings.IndexByte(name, '?'); i >= 0 {
			name = name[:i]
		}
		return strings.EqualFold(path.Ext(name), ".json")
	}
	return strings.EqualFold(filepath.Ext(name), ".json")
}
