// Package pipeline runs uploaded content through the full processing
// chain: block protection, reference tokenization, chunked annotation,
// restoration, asset mirroring, tracking instrumentation, and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sentinel-secure/awareness-platform/internal/annotation"
	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/pkg/logger"
)

// Sentinel errors for the pipeline layer.
var (
	ErrContentNotFound     = errors.New("content not found")
	ErrUnsupportedKind     = errors.New("unsupported content kind")
	ErrAnnotationFailed    = errors.New("annotation failed")
	ErrArtifactWriteFailed = errors.New("artifact write failed")
)

// ContentRepository is the persistence contract the pipeline writes
// through.
type ContentRepository interface {
	Get(ctx context.Context, id string) (*domain.Content, error)
	Create(ctx context.Context, c *domain.Content) (string, error)
	SetArtifact(ctx context.Context, id, artifactPath string, difficulty *int, tags []string) error
}

// Annotator drives the external annotation service; satisfied by
// *annotation.Orchestrator.
type Annotator interface {
	Annotate(ctx context.Context, html string, mode annotation.Mode) (*annotation.Result, error)
}

// AssetMirror localizes trusted remote references; satisfied by
// *assets.Mirror.
type AssetMirror interface {
	Process(ctx context.Context, html, contentRoot string) string
}

// Instrumenter injects the base tag and tracking snippet; satisfied by
// *instrument.Injector.
type Instrumenter interface {
	Instrument(html, baseURL string) (string, error)
}

// ArtifactStore persists the processed document and reports its
// content-local root and serving path; satisfied by *storage.Store.
type ArtifactStore interface {
	WriteArtifact(ctx context.Context, contentID string, data []byte) (artifactPath string, err error)
	ContentRoot(contentID string) string
}

// Pipeline processes one uploaded document per call. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	repo       ContentRepository
	annotator  Annotator
	mirror     AssetMirror
	instrument Instrumenter
	store      ArtifactStore
}

// New creates a pipeline from its collaborators.
func New(repo ContentRepository, annotator Annotator, mirror AssetMirror, instrument Instrumenter, store ArtifactStore) *Pipeline {
	return &Pipeline{
		repo:       repo,
		annotator:  annotator,
		mirror:     mirror,
		instrument: instrument,
		store:      store,
	}
}

// Outcome reports what processing produced for one content item.
type Outcome struct {
	ContentID    string   `json:"content_id"`
	ArtifactPath string   `json:"artifact_path"`
	Tags         []string `json:"tags,omitempty"`
	Difficulty   *int     `json:"difficulty,omitempty"`
	// Partial is set when some chunks were served unannotated after
	// service failures; the artifact is complete but tagging may be
	// incomplete.
	Partial bool `json:"partial,omitempty"`
	Skipped bool `json:"annotation_skipped,omitempty"`
}

// Process runs the full chain for the given content and raw HTML (or
// email body). The content row must already exist; its artifact fields
// are written exactly once on success. Document-level annotation failure
// aborts with no artifact persisted.
func (p *Pipeline) Process(ctx context.Context, content *domain.Content, rawHTML string) (*Outcome, error) {
	mode, annotate, err := modeFor(content.Kind)
	if err != nil {
		return nil, err
	}

	protected, blocks := annotation.Protect(rawHTML)
	tokenized, refs := annotation.Tokenize(protected)

	result := &annotation.Result{HTML: tokenized, Difficulty: annotation.DefaultDifficulty}
	if annotate {
		result, err = p.annotator.Annotate(ctx, tokenized, mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAnnotationFailed, err)
		}
	}

	restored, err := annotation.RestoreRefs(result.HTML, refs)
	if err != nil {
		return nil, fmt.Errorf("restore references: %w", err)
	}
	full, err := annotation.Unprotect(restored, blocks)
	if err != nil {
		return nil, fmt.Errorf("restore protected blocks: %w", err)
	}

	mirrored := p.mirror.Process(ctx, full, p.store.ContentRoot(content.ID))

	instrumented, err := p.instrument.Instrument(mirrored, serveBase(content.ID))
	if err != nil {
		return nil, fmt.Errorf("instrument artifact: %w", err)
	}

	artifactPath, err := p.store.WriteArtifact(ctx, content.ID, []byte(instrumented))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactWriteFailed, err)
	}

	var difficulty *int
	if content.Kind == domain.KindEmail {
		d := result.Difficulty
		difficulty = &d
	}
	if err := p.repo.SetArtifact(ctx, content.ID, artifactPath, difficulty, result.Tags); err != nil {
		return nil, fmt.Errorf("persist artifact metadata: %w", err)
	}

	if result.Partial {
		logger.Warn("content processed with partial annotation",
			"content_id", content.ID, "substituted_chunks", result.Substituted)
	}
	logger.Info("content processed",
		"content_id", content.ID, "kind", string(content.Kind),
		"tags", len(result.Tags), "artifact", artifactPath)

	return &Outcome{
		ContentID:    content.ID,
		ArtifactPath: artifactPath,
		Tags:         result.Tags,
		Difficulty:   difficulty,
		Partial:      result.Partial,
		Skipped:      result.Skipped,
	}, nil
}

// modeFor dispatches on the closed content-kind set. Every kind is
// handled explicitly; video carries no annotatable markup and passes
// through untouched.
func modeFor(kind domain.ContentKind) (annotation.Mode, bool, error) {
	switch kind {
	case domain.KindEmail:
		return annotation.ModePhishingCue, true, nil
	case domain.KindSCORM, domain.KindHTML, domain.KindTraining, domain.KindLanding:
		return annotation.ModeEducational, true, nil
	case domain.KindVideo:
		return annotation.ModeEducational, false, nil
	default:
		return "", false, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

// serveBase is the content-relative base URL baked into the artifact.
func serveBase(contentID string) string {
	return "/content/" + contentID + "/"
}
