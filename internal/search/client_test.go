package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSearchParsesArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "go generics" {
			t.Errorf("query param = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"title":"A","link":"https://a","snippet":"first"},
			{"title":"B","link":"https://b","snippet":"second"},
			{"title":"C","link":"https://c","snippet":"third"},
			{"title":"D","link":"https://d","snippet":"fourth"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 3, time.Second)
	got, err := c.Search(context.Background(), "go generics")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results (capped), got %d", len(got))
	}
	if got[0].Title != "A" || got[0].Snippet != "first" {
		t.Errorf("unexpected first result: %+v", got[0])
	}
}

func TestSearchWrappedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"title":"X","link":"https://x","snippet":"only"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 3, time.Second)
	got, err := c.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "X" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestSearchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 3, time.Second)
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestSearchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"just a string"`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 3, time.Second)
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Fatal("expected error on non-array body")
	}
}
