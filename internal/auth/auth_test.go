package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"probe", http.MethodGet, "/healthz", "", http.StatusNoContent},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusNoContent},
		{"read catalog", http.MethodGet, "/api/v1/catalog", "", http.StatusNoContent},
		{"read object", http.MethodGet, "/api/v1/objects/25544/passes", "", http.StatusNoContent},
		{"position stream", http.MethodGet, "/api/v1/stream/positions", "", http.StatusNoContent},
		{"refresh without token", http.MethodPost, "/api/v1/catalog/refresh", "", http.StatusUnauthorized},
		{"refresh with wrong token", http.MethodPost, "/api/v1/catalog/refresh", "Bearer nope", http.StatusUnauthorized},
		{"refresh with bare token", http.MethodPost, "/api/v1/catalog/refresh", "s3cret", http.StatusUnauthorized},
		{"refresh with token", http.MethodPost, "/api/v1/catalog/refresh", "Bearer s3cret", http.StatusNoContent},
		{"write to read path", http.MethodPost, "/api/v1/objects", "", http.StatusUnauthorized},
		{"unknown path", http.MethodGet, "/admin", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/catalog/refresh", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}
