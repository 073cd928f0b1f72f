package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/pipeline"
	"github.com/sentinel-secure/awareness-platform/internal/tracking"
)

type mockProcessor struct {
	outcome *pipeline.Outcome
	err     error
	lastRaw string
}

func (m *mockProcessor) Process(_ context.Context, c *domain.Content, raw string) (*pipeline.Outcome, error) {
	m.lastRaw = raw
	if m.err != nil {
		return nil, m.err
	}
	out := *m.outcome
	out.ContentID = c.ID
	return &out, nil
}

type mockContentStore struct {
	contents map[string]*domain.Content
	created  []*domain.Content
}

func (m *mockContentStore) Get(_ context.Context, id string) (*domain.Content, error) {
	c, ok := m.contents[id]
	if !ok {
		return nil, pipeline.ErrContentNotFound
	}
	return c, nil
}

func (m *mockContentStore) Create(_ context.Context, c *domain.Content) (string, error) {
	m.created = append(m.created, c)
	return c.ID, nil
}

type mockSessionStore struct {
	sessions []*domain.TrackingSession
	err      error
}

func (m *mockSessionStore) CreateSession(_ context.Context, s *domain.TrackingSession) error {
	if m.err != nil {
		return m.err
	}
	m.sessions = append(m.sessions, s)
	return nil
}

type mockArtifacts struct{ files map[string][]byte }

func (m *mockArtifacts) ReadArtifact(p string) ([]byte, error) {
	data, ok := m.files[p]
	if !ok {
		return nil, errors.New("open: no such file")
	}
	return data, nil
}

// memTrackingRepo backs a real tracking.Service in handler tests.
type memTrackingRepo struct {
	sessions map[string]*domain.TrackingSession
	jobs     map[string]*domain.Job
	tags     map[string][]string
	opened   map[string]bool
}

func newMemTrackingRepo() *memTrackingRepo {
	r := &memTrackingRepo{
		sessions: make(map[string]*domain.TrackingSession),
		jobs:     make(map[string]*domain.Job),
		tags:     make(map[string][]string),
		opened:   make(map[string]bool),
	}
	r.sessions["tok-1"] = &domain.TrackingSession{
		Token: "tok-1", RecipientID: "rcpt-1", JobID: "job-1", Status: domain.SessionPending,
	}
	r.jobs["job-1"] = &domain.Job{ID: "job-1", TrainingContentID: "content-train"}
	return r
}

func (r *memTrackingRepo) GetSession(_ context.Context, token string) (*domain.TrackingSession, error) {
	s, ok := r.sessions[token]
	if !ok {
		return nil, tracking.ErrSessionNotFound
	}
	return s, nil
}

func (r *memTrackingRepo) GetJob(_ context.Context, id string) (*domain.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, tracking.ErrJobNotFound
	}
	return j, nil
}

func (r *memTrackingRepo) GetContentTags(_ context.Context, contentID string) ([]string, error) {
	return r.tags[contentID], nil
}

func (r *memTrackingRepo) MarkOpened(_ context.Context, token string, _ time.Time) (bool, error) {
	if r.opened[token] {
		return false, nil
	}
	r.opened[token] = true
	return true, nil
}

func (r *memTrackingRepo) AppendInteraction(context.Context, *domain.Interaction) error { return nil }

func (r *memTrackingRepo) RecordPhaseScore(_ context.Context, token string, _ domain.TrainingPhase, score int, status domain.SessionStatus, _ time.Time) error {
	r.sessions[token].Status = status
	return nil
}

func (r *memTrackingRepo) IncrementTagScore(context.Context, string, string, int, int) error {
	return nil
}

func setupTestServer(t *testing.T) (*Server, *mockProcessor, *mockContentStore, *memTrackingRepo) {
	t.Helper()
	proc := &mockProcessor{outcome: &pipeline.Outcome{ArtifactPath: "x/index.html", Tags: []string{"button"}}}
	contents := &mockContentStore{contents: make(map[string]*domain.Content)}
	repo := newMemTrackingRepo()
	srv := New(proc, contents, &mockSessionStore{}, &mockArtifacts{files: map[string][]byte{
		"c1/index.html": []byte("<html></html>"),
	}}, tracking.NewService(repo), false)
	return srv, proc, contents, repo
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadContent(t *testing.T) {
	srv, proc, contents, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/content", map[string]string{
		"kind": "html", "body": "<p>hello</p>",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var out pipeline.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "x/index.html", out.ArtifactPath)
	assert.Equal(t, []string{"button"}, out.Tags)
	assert.Equal(t, "<p>hello</p>", proc.lastRaw)
	require.Len(t, contents.created, 1)
	assert.Equal(t, domain.KindHTML, contents.created[0].Kind)
}

func TestUploadContentRejectsUnknownKind(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/content", map[string]string{
		"kind": "banner", "body": "<p></p>",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadContentAnnotationFailure(t *testing.T) {
	srv, proc, _, _ := setupTestServer(t)
	proc.err = pipeline.ErrAnnotationFailed

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/content", map[string]string{
		"kind": "html", "body": "<p></p>",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "details")
}

func TestGetContentNotFound(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/content/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeArtifact(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/content/c1/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html></html>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestServeArtifactMissing(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/content/c1/nope.css", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSession(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/sessions", map[string]string{
		"recipient_id": "rcpt-9", "job_id": "job-9",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session domain.TrackingSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, domain.SessionPending, session.Status)
}

func TestViewEndpoint(t *testing.T) {
	srv, _, _, repo := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/t/view/tok-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, repo.opened["tok-1"])

	// Repeat is still 204.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/t/view/tok-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestViewEndpointUnknownToken(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/t/view/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenPixelAlwaysServesGIF(t *testing.T) {
	srv, _, _, repo := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/t/open/tok-1.gif", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.True(t, repo.opened["tok-1"])

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/t/open/bad-token.gif", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
}

func TestInteractionEndpoint(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/t/interaction/tok-1", map[string]string{
		"element": "button", "kind": "click",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestInteractionRejectsUnknownKind(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/t/interaction/tok-1", map[string]string{
		"element": "button", "kind": "hover",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScoreEndpoint(t *testing.T) {
	srv, _, _, repo := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/t/score/tok-1", map[string]any{
		"content_id": "content-train", "score": 85,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"passed"`)
	assert.Equal(t, domain.SessionPassed, repo.sessions["tok-1"].Status)
}

func TestScoreEndpointValidation(t *testing.T) {
	srv, _, _, _ := setupTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/t/score/tok-1", map[string]any{
		"content_id": "content-train", "score": 120,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/t/score/tok-1", map[string]any{
		"content_id": "unrelated", "score": 90,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
