package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/pkg/httputil"
	"github.com/sentinel-secure/awareness-platform/internal/tracking"
)

// 1x1 transparent GIF served for email-open tracking.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// handleView records the first page view; repeats are no-ops.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if err := s.tracker.RecordView(r.Context(), token); err != nil {
		if errors.Is(err, tracking.ErrSessionNotFound) {
			httputil.NotFound(w, "unknown session")
			return
		}
		s.respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(500, err))
		return
	}
	httputil.NoContent(w)
}

// handleOpenPixel is the img-src variant of view tracking for email
// clients that block script. It always serves the pixel; a bad token is
// not worth a broken image.
func (s *Server) handleOpenPixel(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	// Errors are already logged inside the service; the pixel response
	// never changes.
	_ = s.tracker.RecordView(r.Context(), token)

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Write(pixelGIF)
}

type interactionRequest struct {
	Element string  `json:"element"`
	Kind    string  `json:"kind"`
	Value   *string `json:"value,omitempty"`
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req interactionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Element == "" {
		httputil.BadRequest(w, "element is required")
		return
	}
	kind := domain.InteractionKind(req.Kind)
	switch kind {
	case domain.InteractClick, domain.InteractInput, domain.InteractFocus, domain.InteractSubmit:
	default:
		httputil.BadRequest(w, "unknown interaction kind: "+req.Kind)
		return
	}

	if err := s.tracker.RecordInteraction(r.Context(), token, req.Element, kind, req.Value); err != nil {
		if errors.Is(err, tracking.ErrSessionNotFound) {
			httputil.NotFound(w, "unknown session")
			return
		}
		s.respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(500, err))
		return
	}
	httputil.NoContent(w)
}

type scoreRequest struct {
	ContentID string `json:"content_id"`
	Score     int    `json:"score"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req scoreRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ContentID == "" {
		httputil.BadRequest(w, "content_id is required")
		return
	}

	status, err := s.tracker.RecordScore(r.Context(), token, req.ContentID, req.Score)
	if err != nil {
		switch {
		case errors.Is(err, tracking.ErrInvalidScore):
			httputil.BadRequest(w, "score must be between 0 and 100")
		case errors.Is(err, tracking.ErrUnknownContent):
			httputil.BadRequest(w, "content does not belong to the session's job")
		case errors.Is(err, tracking.ErrSessionNotFound), errors.Is(err, tracking.ErrJobNotFound):
			httputil.NotFound(w, "unknown session")
		default:
			s.respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(500, err))
		}
		return
	}
	httputil.OK(w, map[string]string{"status": string(status)})
}
