package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFetchWritesUnderRoot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("asset-bytes"))
	}))
	defer srv.Close()

	root := t.TempDir()
	f, err := NewHTTPFetcher(root, 5*time.Second, 1)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	if err := f.Fetch(context.Background(), srv.URL+"/logo.png", "system/images/logo.png"); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "system/images/logo.png"))
	if err != nil {
		t.Fatalf("read mirrored asset: %v", err)
	}
	if string(data) != "asset-bytes" {
		t.Fatalf("mirrored bytes = %q", data)
	}
}

func TestFetchRejectsEscapingPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("network request made for rejected path")
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(t.TempDir(), 5*time.Second, 1)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	if err := f.Fetch(context.Background(), srv.URL+"/x", "../outside/evil.png"); err == nil {
		t.Fatal("expected containment error for escaping path")
	}
}

func TestFetchNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	root := t.TempDir()
	f, err := NewHTTPFetcher(root, 5*time.Second, 1)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	if err := f.Fetch(context.Background(), srv.URL+"/missing.png", "system/missing.png"); err == nil {
		t.Fatal("expected error for 404 response")
	}
	if _, err := os.Stat(filepath.Join(root, "system/missing.png")); !os.IsNotExist(err) {
		t.Fatal("file created for failed download")
	}
}
