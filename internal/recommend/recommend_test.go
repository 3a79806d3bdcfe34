package recommend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

// fakeModel answers classification and summary prompts from canned replies.
type fakeModel struct {
	mu       sync.Mutex
	intent   string
	summary  string
	err      error
	requests [][]*schema.Message
}

func (m *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, input)
	if m.err != nil {
		return nil, m.err
	}
	if strings.Contains(input[0].Content, "Classify") {
		return schema.AssistantMessage(m.intent, nil), nil
	}
	return schema.AssistantMessage(m.summary, nil), nil
}

func (m *fakeModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

// fakeRetriever returns fixed hits and records the calls it received.
type fakeRetriever struct {
	hits  []catalog.ProductHit
	err   error
	calls int
	topK  int
}

func (r *fakeRetriever) Retrieve(_ context.Context, _ string, topK int) ([]catalog.ProductHit, error) {
	r.calls++
	r.topK = topK
	if r.err != nil {
		return []catalog.ProductHit{}, r.err
	}
	if topK < len(r.hits) {
		return r.hits[:topK], nil
	}
	return r.hits, nil
}

func waterHits() []catalog.ProductHit {
	return []catalog.ProductHit{
		{ID: "p1", Name: "Water Filter", Description: "Portable filter", Category: "Water", Quantity: 10, Score: 0.92},
		{ID: "p3", Name: "Water Jug", Description: "20L jug", Category: "Water", Quantity: 4, Score: 0.71},
	}
}

func newAssistant(t *testing.T, m model.BaseChatModel, r Retriever) *Assistant {
	t.Helper()
	a, err := New(Config{Model: m, Products: r})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func Test_New_RequiresRetriever(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for nil retriever")
	}
}

func Test_Recommend_EmptyQuery(t *testing.T) {
	t.Parallel()
	r := &fakeRetriever{}
	a := newAssistant(t, nil, r)
	if _, err := a.Recommend(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("want ErrEmptyQuery, got %v", err)
	}
	if r.calls != 0 {
		t.Errorf("retriever called %d times for empty query", r.calls)
	}
}

func Test_Recommend_NoModelListsProducts(t *testing.T) {
	t.Parallel()
	r := &fakeRetriever{hits: waterHits()}
	a := newAssistant(t, nil, r)

	ans, err := a.Recommend(context.Background(), "need clean water")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if ans.Intent != IntentProduct {
		t.Errorf("intent: want product, got %s", ans.Intent)
	}
	if r.topK != DefaultTopK {
		t.Errorf("topK: want %d, got %d", DefaultTopK, r.topK)
	}
	if len(ans.Products) != 2 || ans.Products[0].ID != "p1" {
		t.Errorf("products: got %+v", ans.Products)
	}
	want := "Found 2 matching products: Water Filter, Water Jug."
	if ans.Response != want {
		t.Errorf("response: want %q, got %q", want, ans.Response)
	}
}

func Test_Recommend_NoHits(t *testing.T) {
	t.Parallel()
	a := newAssistant(t, nil, &fakeRetriever{})
	ans, err := a.Recommend(context.Background(), "need clean water")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if ans.Response != NoProductsResponse {
		t.Errorf("response: got %q", ans.Response)
	}
	if ans.Products == nil || len(ans.Products) != 0 {
		t.Errorf("products: want empty non-nil slice, got %#v", ans.Products)
	}
}

func Test_Recommend_RetrievalErrorDegrades(t *testing.T) {
	t.Parallel()
	a := newAssistant(t, nil, &fakeRetriever{err: errors.New("qdrant down")})
	ans, err := a.Recommend(context.Background(), "tents")
	if err != nil {
		t.Fatalf("Recommend should not fail on retrieval error: %v", err)
	}
	if ans.Response != NoProductsResponse {
		t.Errorf("response: got %q", ans.Response)
	}
}

func Test_Recommend_ModelClassifiesAndSummarizes(t *testing.T) {
	t.Parallel()
	m := &fakeModel{intent: "Product.", summary: "  The Water Filter suits your need.  "}
	r := &fakeRetriever{hits: waterHits()}
	a := newAssistant(t, m, r)

	ans, err := a.Recommend(context.Background(), "need clean water")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if ans.Intent != IntentProduct {
		t.Errorf("intent: got %s", ans.Intent)
	}
	if ans.Response != "The Water Filter suits your need." {
		t.Errorf("response: got %q", ans.Response)
	}
	if len(m.requests) != 2 {
		t.Fatalf("model calls: want 2, got %d", len(m.requests))
	}
	summary := m.requests[1]
	last := summary[len(summary)-1].Content
	if !strings.Contains(last, "Water Filter [Water]: Portable filter") {
		t.Errorf("summary prompt missing product line: %q", last)
	}
}

func Test_Recommend_NonProductIntent(t *testing.T) {
	t.Parallel()
	for _, label := range []string{"order", "fraud", "other", "weather"} {
		t.Run(label, func(t *testing.T) {
			t.Parallel()
			r := &fakeRetriever{hits: waterHits()}
			a := newAssistant(t, &fakeModel{intent: label}, r)
			ans, err := a.Recommend(context.Background(), "where is my order")
			if err != nil {
				t.Fatalf("Recommend: %v", err)
			}
			if ans.Response != GenericResponse {
				t.Errorf("response: got %q", ans.Response)
			}
			if r.calls != 0 {
				t.Errorf("retriever should not run for intent %q", label)
			}
			if len(ans.Products) != 0 {
				t.Errorf("products: want none, got %d", len(ans.Products))
			}
		})
	}
}

func Test_Recommend_ModelFailureFallsBack(t *testing.T) {
	t.Parallel()
	m := &fakeModel{err: errors.New("rate limited")}
	a := newAssistant(t, m, &fakeRetriever{hits: waterHits()[:1]})

	ans, err := a.Recommend(context.Background(), "need clean water")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if ans.Intent != IntentProduct {
		t.Errorf("intent: want product fallback, got %s", ans.Intent)
	}
	if ans.Response != "Found 1 matching product: Water Filter." {
		t.Errorf("response: got %q", ans.Response)
	}
}

func Test_ParseIntent(t *testing.T) {
	t.Parallel()
	cases := map[string]Intent{
		"product":     IntentProduct,
		" ORDER\n":    IntentOrder,
		"\"fraud\".":  IntentFraud,
		"[other]":     IntentOther,
		"I think so":  IntentOther,
		"":            IntentOther,
		"Product":     IntentProduct,
		"`product`  ": IntentProduct,
	}
	for in, want := range cases {
		if got := ParseIntent(in); got != want {
			t.Errorf("ParseIntent(%q) = %s, want %s", in, got, want)
		}
	}
}
