package tracking

import (
	"context"
	"time"

	"github.com/sentinel-secure/awareness-platform/internal/domain"
)

// Repository defines the data access contract for tracking sessions.
// Implementations must be safe for concurrent use, and the conditional
// writes (MarkOpened, RecordPhaseScore, IncrementTagScore) must be atomic
// at the storage layer: concurrent callers must never produce lost
// updates or double-set the opened timestamp.
type Repository interface {
	// GetSession returns a session by its tracking token. Returns
	// ErrSessionNotFound if the token is unknown.
	GetSession(ctx context.Context, token string) (*domain.TrackingSession, error)

	// GetJob returns the parent job. Returns ErrJobNotFound if missing.
	GetJob(ctx context.Context, id string) (*domain.Job, error)

	// GetContentTags returns the tag names associated with a content item.
	GetContentTags(ctx context.Context, contentID string) ([]string, error)

	// MarkOpened sets the opened timestamp only if it is currently unset.
	// Returns true when this call performed the transition, false when
	// the session was already opened.
	MarkOpened(ctx context.Context, token string, at time.Time) (bool, error)

	// AppendInteraction inserts one immutable interaction record.
	AppendInteraction(ctx context.Context, in *domain.Interaction) error

	// RecordPhaseScore sets the phase's score, completion timestamp, and
	// the session status. Status must never be written back to pending.
	RecordPhaseScore(ctx context.Context, token string, phase domain.TrainingPhase, score int, status domain.SessionStatus, at time.Time) error

	// IncrementTagScore upserts the (recipient, tag) aggregate, adding
	// the given deltas atomically.
	IncrementTagScore(ctx context.Context, recipientID, tag string, passDelta, attemptDelta int) error
}
