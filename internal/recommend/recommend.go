// Package recommend answers free-text requests from relief workers: it
// classifies the request, retrieves matching products from the semantic
// index and phrases a short answer with the configured chat model.
//
// A chat model is optional. Without one every request is treated as a
// product request and the answer is a deterministic listing, so the
// endpoint stays useful on deployments that only run an embedder.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/reliefconnect/internal/budget"
	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/logging"
)

// Intent is the classified purpose of a request.
type Intent string

const (
	IntentProduct Intent = "product"
	IntentOrder   Intent = "order"
	IntentFraud   Intent = "fraud"
	IntentOther   Intent = "other"
)

// DefaultTopK is the number of products retrieved per request.
const DefaultTopK = 3

const (
	// NoProductsResponse is returned for product requests with no hits.
	NoProductsResponse = "No matching products found."

	// GenericResponse is returned for anything that is not a product request.
	GenericResponse = "I can assist with disaster relief products or order inquiries. Please specify your request."
)

// ErrEmptyQuery is returned when Recommend is called with a blank query.
var ErrEmptyQuery = errors.New("recommend: query must not be empty")

const classifyPrompt = `You are a relief system assistant.
Classify the intent of the user's message into one of: [product, order, fraud, other].
Respond with only the label.`

const summarizePrompt = `You are a relief system assistant.
Summarize the listed relief products for the user's query. Keep it brief and helpful.`

// Retriever ranks products for a query. *search.ProductSearch satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]catalog.ProductHit, error)
}

// Answer is the result of a recommendation request.
type Answer struct {
	Intent   Intent               `json:"intent"`
	Response string               `json:"response"`
	Products []catalog.ProductHit `json:"products"`
}

// Config holds the dependencies of an Assistant.
type Config struct {
	// Model is the chat model used for classification and summaries. Nil
	// disables both.
	Model model.BaseChatModel
	// Products retrieves candidate products. Required.
	Products Retriever
	// TopK defaults to DefaultTopK.
	TopK int
	// MaxContextTokens bounds the summary prompt. Defaults to
	// budget.DefaultMaxContextTokens.
	MaxContextTokens int
	Logger           *slog.Logger
}

// Assistant implements the recommend flow. It is safe for concurrent use.
type Assistant struct {
	model     model.BaseChatModel
	products  Retriever
	topK      int
	maxTokens int
	log       *slog.Logger
}

// New constructs an Assistant from cfg.
func New(cfg Config) (*Assistant, error) {
	if cfg.Products == nil {
		return nil, fmt.Errorf("recommend: product retriever must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{
		model:     cfg.Model,
		products:  cfg.Products,
		topK:      cfg.TopK,
		maxTokens: cfg.MaxContextTokens,
		log:       cfg.Logger,
	}, nil
}

// HasModel reports whether a chat model is configured.
func (a *Assistant) HasModel() bool { return a.model != nil }

// Recommend classifies query, retrieves products for product requests and
// returns a short answer. Retrieval and model failures degrade the answer
// rather than failing the request; only a blank query is an error.
func (a *Assistant) Recommend(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	log := a.logger(ctx)

	intent := a.classify(ctx, query)
	ans := &Answer{Intent: intent, Products: []catalog.ProductHit{}}
	if intent != IntentProduct {
		ans.Response = GenericResponse
		return ans, nil
	}

	hits, err := a.products.Retrieve(ctx, query, a.topK)
	if err != nil {
		log.Warn("recommend: product retrieval failed", slog.Any("error", err))
	}
	if len(hits) > 0 {
		ans.Products = hits
	}
	if len(ans.Products) == 0 {
		ans.Response = NoProductsResponse
		return ans, nil
	}

	ans.Response = a.summarize(ctx, query, ans.Products)
	return ans, nil
}

// classify asks the model for an intent label. Without a model, or when the
// model fails, the request is treated as a product request.
func (a *Assistant) classify(ctx context.Context, query string) Intent {
	if a.model == nil {
		return IntentProduct
	}
	msgs := []*schema.Message{
		schema.SystemMessage(classifyPrompt),
		schema.UserMessage(query),
	}
	resp, err := a.model.Generate(ctx, msgs, model.WithTemperature(0))
	if err != nil || resp == nil {
		a.logger(ctx).Warn("recommend: intent classification failed, assuming product",
			slog.Any("error", err),
		)
		return IntentProduct
	}
	return ParseIntent(resp.Content)
}

// ParseIntent normalises a model label. Anything outside the known set is
// IntentOther.
func ParseIntent(label string) Intent {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.Trim(l, " .\"'`[]")
	switch Intent(l) {
	case IntentProduct, IntentOrder, IntentFraud, IntentOther:
		return Intent(l)
	default:
		return IntentOther
	}
}

// summarize phrases hits for the user. Without a model, or when the model
// fails, it falls back to Listing.
func (a *Assistant) summarize(ctx context.Context, query string, hits []catalog.ProductHit) string {
	if a.model == nil {
		return Listing(hits)
	}

	fixed := []*schema.Message{
		schema.SystemMessage(summarizePrompt),
		schema.UserMessage("Query: " + query),
	}
	lines := make([]string, len(hits))
	for i, h := range hits {
		lines[i] = productLine(h)
	}
	kept := budget.FitItems(fixed, lines, a.maxTokens)
	if dropped := len(lines) - len(kept); dropped > 0 {
		a.logger(ctx).Warn("budget: dropped products from summary prompt",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(kept)),
			slog.Int("max_tokens", a.maxTokens),
		)
	}
	if len(kept) == 0 {
		return Listing(hits)
	}

	msgs := append(fixed, schema.UserMessage("Products:\n"+strings.Join(kept, "\n"))) //nolint:gocritic // fixed is not reused
	resp, err := a.model.Generate(ctx, msgs)
	if err != nil || resp == nil || strings.TrimSpace(resp.Content) == "" {
		a.logger(ctx).Warn("recommend: summary generation failed, using listing", slog.Any("error", err))
		return Listing(hits)
	}
	return strings.TrimSpace(resp.Content)
}

// Listing is the model-free answer for a non-empty product result.
func Listing(hits []catalog.ProductHit) string {
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.Name
		if names[i] == "" {
			names[i] = h.ID
		}
	}
	noun := "products"
	if len(hits) == 1 {
		noun = "product"
	}
	return fmt.Sprintf("Found %d matching %s: %s.", len(hits), noun, strings.Join(names, ", "))
}

func productLine(h catalog.ProductHit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- %s", h.Name)
	if h.Category != "" {
		fmt.Fprintf(&sb, " [%s]", h.Category)
	}
	if h.Description != "" {
		fmt.Fprintf(&sb, ": %s", h.Description)
	}
	fmt.Fprintf(&sb, " (in stock: %d", h.Quantity)
	if h.Price > 0 {
		fmt.Fprintf(&sb, ", price: %.2f", h.Price)
	}
	sb.WriteString(")")
	return sb.String()
}

func (a *Assistant) logger(ctx context.Context) *slog.Logger {
	if l := logging.FromContext(ctx); l != slog.Default() {
		return l
	}
	return a.log
}
