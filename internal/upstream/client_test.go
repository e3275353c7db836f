package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewValidatesBaseURL(t *testing.T) {
	cases := []string{"", "ftp://example.com", "not a url at all ://"}
	for _, raw := range cases {
		if _, err := New(raw, time.Second); err == nil {
			t.Fatalf("expected error for base URL %q", raw)
		}
	}
	c, err := New("https://api.example.com/", time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.BaseURL() != "https://api.example.com" {
		t.Fatalf("trailing slash not trimmed: %q", c.BaseURL())
	}
}

func TestDoBuildsTargetURL(t *testing.T) {
	var gotPath, gotQuery, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("unexpected body %q", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer k")
	resp, err := c.Do(context.Background(), http.MethodPost, "/v1/chat/completions", "foo=bar", header, strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotPath != "/v1/chat/completions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "foo=bar" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotHeader != "Bearer k" {
		t.Fatalf("unexpected auth header %q", gotHeader)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, err := New(srv.URL, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Do(ctx, http.MethodGet, "/slow", "", nil, nil); err == nil {
		t.Fatal("expected context deadline error")
	}
}
