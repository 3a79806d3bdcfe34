package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakePinger reports err from Ping; nil means healthy.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// slowPinger blocks until its context is done.
type slowPinger struct{ name string }

func (p *slowPinger) Name() string { return p.name }
func (p *slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = pingers
	return s
}

// getReady runs GET /api/ready against s and decodes the body.
func getReady(t *testing.T, s *Server, ctx context.Context) (*httptest.ResponseRecorder, readyResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	s.handleReady(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w, resp
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newTestServer().handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	cases := []struct {
		name       string
		pingers    []Pinger
		wantStatus int
		wantOK     []bool
	}{
		{
			name:       "liveness only",
			wantStatus: http.StatusOK,
			wantOK:     []bool{},
		},
		{
			name:       "all healthy",
			pingers:    []Pinger{&fakePinger{name: "store"}, &fakePinger{name: "embedder"}, &fakePinger{name: "qdrant"}},
			wantStatus: http.StatusOK,
			wantOK:     []bool{true, true, true},
		},
		{
			name:       "qdrant down",
			pingers:    []Pinger{&fakePinger{name: "store"}, &fakePinger{name: "qdrant", err: down}},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{true, false},
		},
		{
			name:       "everything down",
			pingers:    []Pinger{&fakePinger{name: "embedder", err: down}, &fakePinger{name: "qdrant", err: down}},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{false, false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w, resp := getReady(t, newReadyTestServer(tc.pingers...), context.Background())
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if resp.Ready != (tc.wantStatus == http.StatusOK) {
				t.Errorf("ready = %v", resp.Ready)
			}
			if len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("got %d checks, want %d", len(resp.Checks), len(tc.wantOK))
			}
			for i, ok := range tc.wantOK {
				c := resp.Checks[i]
				if c.OK != ok {
					t.Errorf("check %q: ok = %v, want %v", c.Name, c.OK, ok)
				}
				if !ok && c.Error == "" {
					t.Errorf("check %q: failing probe must carry an error", c.Name)
				}
			}
		})
	}
}

func TestHandleReady_PreservesOrderAndHonoursCancel(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&slowPinger{name: "qdrant"},
		&fakePinger{name: "store"},
		&fakePinger{name: "embedder"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w, resp := getReady(t, s, ctx)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	want := []string{"qdrant", "store", "embedder"}
	if len(resp.Checks) != len(want) {
		t.Fatalf("expected %d checks, got %d", len(want), len(resp.Checks))
	}
	for i, name := range want {
		if resp.Checks[i].Name != name {
			t.Errorf("check %d: expected %q, got %q", i, name, resp.Checks[i].Name)
		}
	}
	if resp.Checks[0].OK || resp.Checks[0].Error == "" {
		t.Errorf("slow probe should fail with an error, got %+v", resp.Checks[0])
	}
	if !resp.Checks[1].OK {
		t.Errorf("store probe should pass")
	}
}
