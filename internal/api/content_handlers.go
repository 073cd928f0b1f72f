package api

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/pipeline"
	"github.com/sentinel-secure/awareness-platform/internal/pkg/httputil"
)

// maxUploadBytes bounds the raw upload body; the annotation ceiling is
// enforced separately inside the pipeline.
const maxUploadBytes = 16 << 20

type uploadContentRequest struct {
	Kind     string  `json:"kind"`
	Body     string  `json:"body"`
	OwnerID  *string `json:"owner_id,omitempty"`
	DomainID *string `json:"domain_id,omitempty"`
}

// handleUploadContent accepts raw HTML (or an email body), creates the
// content row, and runs the full processing chain synchronously.
func (s *Server) handleUploadContent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var req uploadContentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	kind := domain.ContentKind(req.Kind)
	if !kind.Valid() {
		httputil.BadRequest(w, "unknown content kind: "+req.Kind)
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		httputil.BadRequest(w, "body is required")
		return
	}

	content := &domain.Content{
		ID:       uuid.New().String(),
		Kind:     kind,
		OwnerID:  req.OwnerID,
		DomainID: req.DomainID,
	}
	if _, err := s.contents.Create(r.Context(), content); err != nil {
		s.respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(500, err))
		return
	}

	outcome, err := s.processor.Process(r.Context(), content, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrUnsupportedKind):
			httputil.BadRequest(w, err.Error())
		case errors.Is(err, pipeline.ErrAnnotationFailed):
			s.respondSafeError(w, http.StatusBadGateway, err, "annotation service unavailable")
		default:
			s.respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(500, err))
		}
		return
	}

	httputil.Created(w, outcome)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	content, err := s.contents.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrContentNotFound) {
			httputil.NotFound(w, "content not found")
			return
		}
		s.respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(500, err))
		return
	}
	httputil.OK(w, content)
}

// handleServeArtifact serves processed files under the content root,
// including mirrored assets. Path containment is enforced by the store.
func (s *Server) handleServeArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rest := chi.URLParam(r, "*")
	if rest == "" {
		rest = "index.html"
	}

	data, err := s.artifacts.ReadArtifact(path.Join(id, rest))
	if err != nil {
		httputil.NotFound(w, "not found")
		return
	}

	ctype := mime.TypeByExtension(path.Ext(rest))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Write(data)
}

type createSessionRequest struct {
	RecipientID string `json:"recipient_id"`
	JobID       string `json:"job_id"`
}

// handleCreateSession issues a tracking session token for one recipient
// and job.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.RecipientID == "" || req.JobID == "" {
		httputil.BadRequest(w, "recipient_id and job_id are required")
		return
	}

	session := &domain.TrackingSession{
		Token:       uuid.New().String(),
		RecipientID: req.RecipientID,
		JobID:       req.JobID,
		Status:      domain.SessionPending,
	}
	if err := s.sessions.CreateSession(r.Context(), session); err != nil {
		s.respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(500, err))
		return
	}
	httputil.Created(w, session)
}
