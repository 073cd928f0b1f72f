package pipeline_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/sentinel-secure/awareness-platform/internal/annotation"
	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/instrument"
	"github.com/sentinel-secure/awareness-platform/internal/pipeline"
)

type memContentRepo struct {
	mu       sync.Mutex
	contents map[string]*domain.Content
	tags     map[string][]string
}

func newMemContentRepo() *memContentRepo {
	return &memContentRepo{contents: make(map[string]*domain.Content), tags: make(map[string][]string)}
}

func (m *memContentRepo) Get(_ context.Context, id string) (*domain.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok {
		return nil, pipeline.ErrContentNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memContentRepo) Create(_ context.Context, c *domain.Content) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contents[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memContentRepo) SetArtifact(_ context.Context, id, artifactPath string, difficulty *int, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	if !ok {
		return pipeline.ErrContentNotFound
	}
	c.ArtifactPath = &artifactPath
	c.Difficulty = difficulty
	// Duplicate pairs are a no-op, matching the ON CONFLICT DO NOTHING
	// behavior of the real repository.
	for _, tag := range tags {
		dup := false
		for _, have := range m.tags[id] {
			if have == tag {
				dup = true
			}
		}
		if !dup {
			m.tags[id] = append(m.tags[id], tag)
		}
	}
	return nil
}

// passthroughMirror leaves HTML untouched.
type passthroughMirror struct{}

func (passthroughMirror) Process(_ context.Context, html, _ string) string { return html }

type memStore struct {
	mu        sync.Mutex
	artifacts map[string][]byte
}

func (m *memStore) WriteArtifact(_ context.Context, contentID string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.artifacts == nil {
		m.artifacts = make(map[string][]byte)
	}
	m.artifacts[contentID] = data
	return contentID + "/index.html", nil
}

func (m *memStore) ContentRoot(contentID string) string { return "/tmp/content/" + contentID }

// taggingInvoker echoes input and wraps it so one in-vocabulary and one
// out-of-vocabulary marker are present.
type taggingInvoker struct{ prefix string }

func (t taggingInvoker) Invoke(_ context.Context, _, user string) (string, error) {
	return t.prefix + `<div data-sat-tag="button">` + user + `</div>`, nil
}

const uploadDoc = `<html><head><script>var secret = "never-touch";</script></head>` +
	`<body><img src="/foo.png"><p>lesson</p></body></html>`

func newTestPipeline(repo *memContentRepo, inv annotation.Invoker, store *memStore) *pipeline.Pipeline {
	orch := annotation.NewOrchestrator(inv, nil, 64*1024, 1<<20, 2)
	return pipeline.New(repo, orch, passthroughMirror{}, instrument.NewInjector("/t"), store)
}

func TestProcessRoundTripsProtectedContent(t *testing.T) {
	repo := newMemContentRepo()
	store := &memStore{}
	repo.Create(context.Background(), &domain.Content{ID: "c1", Kind: domain.KindHTML})

	p := newTestPipeline(repo, taggingInvoker{}, store)
	out, err := p.Process(context.Background(), &domain.Content{ID: "c1", Kind: domain.KindHTML}, uploadDoc)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	artifact := string(store.artifacts["c1"])
	if !strings.Contains(artifact, `<script>var secret = "never-touch";</script>`) {
		t.Fatal("script block not restored byte-for-byte")
	}
	if !strings.Contains(artifact, `src="/foo.png"`) {
		t.Fatal("image reference not restored")
	}
	if len(out.Tags) != 1 || out.Tags[0] != "button" {
		t.Fatalf("tags = %v, want [button]", out.Tags)
	}
	if out.ArtifactPath != "c1/index.html" {
		t.Fatalf("artifact path = %q", out.ArtifactPath)
	}
}

func TestProcessInstrumentsArtifact(t *testing.T) {
	repo := newMemContentRepo()
	store := &memStore{}
	repo.Create(context.Background(), &domain.Content{ID: "c2", Kind: domain.KindTraining})

	p := newTestPipeline(repo, taggingInvoker{}, store)
	if _, err := p.Process(context.Background(), &domain.Content{ID: "c2", Kind: domain.KindTraining}, uploadDoc); err != nil {
		t.Fatalf("process: %v", err)
	}

	artifact := string(store.artifacts["c2"])
	if !strings.Contains(artifact, `<base href="/content/c2/">`) {
		t.Fatal("base tag missing from artifact")
	}
	if !strings.Contains(artifact, "sendBeacon") {
		t.Fatal("tracking snippet missing from artifact")
	}
}

func TestProcessEmailRecordsDifficulty(t *testing.T) {
	repo := newMemContentRepo()
	store := &memStore{}
	repo.Create(context.Background(), &domain.Content{ID: "c3", Kind: domain.KindEmail})

	inv := taggingInvoker{prefix: "DIFFICULTY:3\n"}
	p := newTestPipeline(repo, inv, store)
	out, err := p.Process(context.Background(), &domain.Content{ID: "c3", Kind: domain.KindEmail}, "<p>urgent: verify your account</p>")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Difficulty == nil || *out.Difficulty != 3 {
		t.Fatalf("difficulty = %v, want 3", out.Difficulty)
	}
	if repo.contents["c3"].Difficulty == nil || *repo.contents["c3"].Difficulty != 3 {
		t.Fatal("difficulty not persisted")
	}
}

func TestProcessVideoSkipsAnnotation(t *testing.T) {
	repo := newMemContentRepo()
	store := &memStore{}
	repo.Create(context.Background(), &domain.Content{ID: "c4", Kind: domain.KindVideo})

	calls := 0
	inv := countingInvoker{calls: &calls}
	p := newTestPipeline(repo, inv, store)
	out, err := p.Process(context.Background(), &domain.Content{ID: "c4", Kind: domain.KindVideo}, "<video poster=\"/p.png\"></video>")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if calls != 0 {
		t.Fatalf("annotation service called %d times for video content", calls)
	}
	if len(out.Tags) != 0 {
		t.Fatalf("video content reported tags: %v", out.Tags)
	}
}

type countingInvoker struct{ calls *int }

func (c countingInvoker) Invoke(_ context.Context, _, user string) (string, error) {
	*c.calls++
	return user, nil
}

func TestProcessUnsupportedKind(t *testing.T) {
	p := newTestPipeline(newMemContentRepo(), taggingInvoker{}, &memStore{})
	_, err := p.Process(context.Background(), &domain.Content{ID: "x", Kind: "banner"}, "<p></p>")
	if err == nil {
		t.Fatal("expected error for unsupported content kind")
	}
}

func TestProcessAnnotationFailureAbortsWithNoArtifact(t *testing.T) {
	repo := newMemContentRepo()
	store := &memStore{}
	repo.Create(context.Background(), &domain.Content{ID: "c5", Kind: domain.KindHTML})

	p := newTestPipeline(repo, failingInvoker{}, store)
	_, err := p.Process(context.Background(), &domain.Content{ID: "c5", Kind: domain.KindHTML}, uploadDoc)
	if err == nil {
		t.Fatal("expected document-level annotation failure to abort")
	}
	if len(store.artifacts) != 0 {
		t.Fatal("artifact persisted despite aborted processing")
	}
	if repo.contents["c5"].ArtifactPath != nil {
		t.Fatal("artifact path persisted despite aborted processing")
	}
}

type failingInvoker struct{}

func (failingInvoker) Invoke(context.Context, string, string) (string, error) {
	return "", context.DeadlineExceeded
}
