package covers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLookup_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/covers" {
			t.Fatalf("path = %s, want /api/covers", r.URL.Path)
		}
		if got := r.URL.Query().Get("isbn"); got != "9780747532743" {
			t.Fatalf("isbn = %s, want 9780747532743", got)
		}

		resp := BookInfo{
			CoverURL:  "https://covers.example/hp1.jpg",
			PageCount: 223,
			Publisher: "Bloomsbury",
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.Lookup(ctx, "9780747532743")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if res == nil || res.CoverURL != "https://covers.example/hp1.jpg" {
		t.Fatalf("unexpected response: %+v", res)
	}
	if res.PageCount != 223 || res.Publisher != "Bloomsbury" {
		t.Fatalf("unexpected metadata: %+v", res)
	}
}

func TestLookup_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.Lookup(ctx, "000")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 404, got %+v", res)
	}
}

func TestLookup_NoContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.Lookup(ctx, "000")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 204, got %+v", res)
	}
}

func TestLookup_NotConfigured(t *testing.T) {
	var client *Client

	if _, err := client.Lookup(context.Background(), "123"); err == nil {
		t.Fatalf("expected error for nil client")
	}

	client = NewClient("")
	if _, err := client.Lookup(context.Background(), "123"); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}
