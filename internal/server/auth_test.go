package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		apiKey     string
		header     string
		wantStatus int
		// wantChallenge is a substring of WWW-Authenticate on 401.
		wantChallenge string
	}{
		{name: "disabled", apiKey: "", header: "", wantStatus: http.StatusOK},
		{name: "disabled ignores header", apiKey: "", header: "Bearer anything", wantStatus: http.StatusOK},
		{name: "missing header", apiKey: "secret", wantStatus: http.StatusUnauthorized, wantChallenge: `realm="relief"`},
		{name: "wrong token", apiKey: "secret", header: "Bearer wrong-token", wantStatus: http.StatusUnauthorized, wantChallenge: "invalid_token"},
		{name: "prefix of key", apiKey: "secret", header: "Bearer secre", wantStatus: http.StatusUnauthorized, wantChallenge: "invalid_token"},
		{name: "correct token", apiKey: "secret", header: "Bearer secret", wantStatus: http.StatusOK},
		{name: "lowercase scheme", apiKey: "secret", header: "bearer secret", wantStatus: http.StatusOK},
		{name: "basic auth", apiKey: "secret", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized, wantChallenge: `realm="relief"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, okHandler).ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantChallenge != "" {
				if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, tc.wantChallenge) {
					t.Errorf("WWW-Authenticate = %q, want it to contain %q", got, tc.wantChallenge)
				}
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Bearer mytoken":     "mytoken",
		"BEARER mytoken":     "mytoken",
		"Bearer  spaced ":    "spaced",
		"Basic dXNlcjpwYXNz": "",
		"":                   "",
		"Bearer":             "",
		"token only":         "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := bearerToken(req); got != want {
			t.Errorf("header=%q: got %q, want %q", header, got, want)
		}
	}
}
