package assets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// memFetcher records fetch calls and fails URLs listed in fail.
type memFetcher struct {
	mu      sync.Mutex
	fetched map[string]string // url -> localPath
	fail    map[string]bool
}

func newMemFetcher() *memFetcher {
	return &memFetcher{fetched: make(map[string]string), fail: make(map[string]bool)}
}

func (m *memFetcher) Fetch(_ context.Context, url, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[url] {
		return errors.New("simulated fetch failure")
	}
	m.fetched[url] = localPath
	return nil
}

const origin = "https://legacy.example.com"

func TestMirrorRewritesLegacyReference(t *testing.T) {
	f := newMemFetcher()
	m := NewMirror(f, "/system/", origin, 2)

	html := `<img src="/system/images/logo.png">`
	out := m.Process(context.Background(), html, "/srv/content/abc")

	if !strings.Contains(out, `src="system/images/logo.png"`) {
		t.Fatalf("legacy reference not rewritten: %q", out)
	}
	if _, ok := f.fetched[origin+"/system/images/logo.png"]; !ok {
		t.Fatal("legacy asset not fetched from trusted origin")
	}
}

func TestMirrorRejectsTraversal(t *testing.T) {
	f := newMemFetcher()
	m := NewMirror(f, "/system/", origin, 2)

	html := `<img src="/system/../../etc/passwd">`
	out := m.Process(context.Background(), html, "/srv/content/abc")

	if out != html {
		t.Fatalf("traversal path was rewritten: %q", out)
	}
	if len(f.fetched) != 0 {
		t.Fatal("traversal path was fetched")
	}
}

func TestMirrorRejectsDisallowedCharacters(t *testing.T) {
	f := newMemFetcher()
	m := NewMirror(f, "/system/", origin, 2)

	html := `<img src="/system/ima%20ges/x;rm.png">`
	out := m.Process(context.Background(), html, "/srv/content/abc")

	if out != html {
		t.Fatal("path with disallowed characters was rewritten")
	}
	if len(f.fetched) != 0 {
		t.Fatal("path with disallowed characters was fetched")
	}
}

func TestMirrorHandlesCDNReferences(t *testing.T) {
	f := newMemFetcher()
	m := NewMirror(f, "/system/", "", 2)

	html := `<script src="//cdn.example.net/lib/player.js"></script>`
	out := m.Process(context.Background(), html, "/srv/content/abc")

	if !strings.Contains(out, `src="cdn/cdn.example.net/lib/player.js"`) {
		t.Fatalf("CDN reference not rewritten: %q", out)
	}
	if path, ok := f.fetched["https://cdn.example.net/lib/player.js"]; !ok {
		t.Fatal("CDN asset not fetched over https")
	} else if !strings.HasSuffix(path, "cdn/cdn.example.net/lib/player.js") {
		t.Fatalf("CDN asset stored at %q", path)
	}
}

func TestMirrorKeepsRemoteReferenceOnFetchFailure(t *testing.T) {
	f := newMemFetcher()
	f.fail[origin+"/system/broken.png"] = true
	m := NewMirror(f, "/system/", origin, 2)

	html := `<img src="/system/broken.png"><img src="/system/ok.png">`
	out := m.Process(context.Background(), html, "/srv/content/abc")

	if !strings.Contains(out, `src="/system/broken.png"`) {
		t.Fatal("failed asset reference was rewritten to a dangling local path")
	}
	if !strings.Contains(out, `src="system/ok.png"`) {
		t.Fatal("successful asset reference was not rewritten")
	}
}

func TestMirrorNoTrustedOriginSkipsLegacy(t *testing.T) {
	f := newMemFetcher()
	m := NewMirror(f, "/system/", "", 2)

	html := `<img src="/system/images/logo.png">`
	out := m.Process(context.Background(), html, "/srv/content/abc")

	if out != html {
		t.Fatal("legacy reference handled despite missing trusted origin")
	}
}

func TestMirrorDeduplicatesReferences(t *testing.T) {
	f := newMemFetcher()
	m := NewMirror(f, "/system/", origin, 2)

	html := strings.Repeat(`<img src="/system/logo.png">`, 3)
	m.Process(context.Background(), html, "/srv/content/abc")

	if len(f.fetched) != 1 {
		t.Fatalf("asset fetched %d times, want 1", len(f.fetched))
	}
}
