package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestMiddleware_GeneratesWhenMissing(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		if r.Header.Get(Header) != seen {
			t.Errorf("expected request header to carry the id")
		}
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated uuid, got %q: %v", seen, err)
	}
	if got := w.Header().Get(Header); got != seen {
		t.Fatalf("expected response header %q, got %q", seen, got)
	}
}

func TestMiddleware_ReusesInbound(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set(Header, " abc-123 ")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if seen != "abc-123" {
		t.Fatalf("expected inbound id to be reused, got %q", seen)
	}
}

func TestMiddleware_ReplacesOversizedInbound(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set(Header, strings.Repeat("x", maxInboundLen+1))
	h.ServeHTTP(httptest.NewRecorder(), r)

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected oversized id to be replaced, got %q", seen)
	}
}
