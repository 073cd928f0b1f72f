package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/tracking"
)

// TrackingRepo implements tracking.Repository against PostgreSQL. The
// view and score writes are expressed as conditional single statements so
// concurrent requests cannot produce lost updates.
type TrackingRepo struct{ db *sql.DB }

// NewTrackingRepo creates a Postgres-backed tracking repository.
func NewTrackingRepo(db *sql.DB) *TrackingRepo { return &TrackingRepo{db: db} }

func (r *TrackingRepo) GetSession(ctx context.Context, token string) (*domain.TrackingSession, error) {
	s := &domain.TrackingSession{}
	err := r.db.QueryRowContext(ctx, `
		SELECT token, recipient_id, job_id, opened_at, training_score, followup_score,
		       training_completed_at, followup_completed_at, status, created_at
		FROM tracking_sessions
		WHERE token = $1
	`, token).Scan(
		&s.Token, &s.RecipientID, &s.JobID, &s.OpenedAt, &s.TrainingScore, &s.FollowupScore,
		&s.TrainingCompletedAt, &s.FollowupCompletedAt, &s.Status, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, tracking.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *TrackingRepo) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	j := &domain.Job{}
	var followup sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, training_content_id, COALESCE(followup_content_id, ''), created_at
		FROM jobs
		WHERE id = $1
	`, id).Scan(&j.ID, &j.TrainingContentID, &followup, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, tracking.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if followup.Valid {
		j.FollowupContentID = followup.String
	}
	return j, nil
}

func (r *TrackingRepo) GetContentTags(ctx context.Context, contentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tag FROM content_tags WHERE content_id = $1 ORDER BY tag
	`, contentID)
	if err != nil {
		return nil, fmt.Errorf("content tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// MarkOpened sets opened_at only when it is still NULL. The only-if-null
// guard lives in the WHERE clause, making concurrent first views race-free:
// exactly one caller observes a row transition.
func (r *TrackingRepo) MarkOpened(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tracking_sessions
		SET opened_at = $2
		WHERE token = $1 AND opened_at IS NULL
	`, token, at)
	if err != nil {
		return false, fmt.Errorf("mark opened: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *TrackingRepo) AppendInteraction(ctx context.Context, in *domain.Interaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO interactions (id, session_token, element, kind, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, in.ID, in.SessionToken, in.Element, in.Kind, in.Value, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	return nil
}

func (r *TrackingRepo) RecordPhaseScore(ctx context.Context, token string, phase domain.TrainingPhase, score int, status domain.SessionStatus, at time.Time) error {
	var q string
	if phase == domain.PhaseTraining {
		q = `UPDATE tracking_sessions
		     SET training_score = $2, training_completed_at = $3, status = $4
		     WHERE token = $1`
	} else {
		q = `UPDATE tracking_sessions
		     SET followup_score = $2, followup_completed_at = $3, status = $4
		     WHERE token = $1`
	}
	res, err := r.db.ExecContext(ctx, q, token, score, at, status)
	if err != nil {
		return fmt.Errorf("record phase score: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return tracking.ErrSessionNotFound
	}
	return nil
}

// IncrementTagScore upserts the aggregate in one statement; the increment
// happens inside the database so concurrent passes never lose counts.
func (r *TrackingRepo) IncrementTagScore(ctx context.Context, recipientID, tag string, passDelta, attemptDelta int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tag_scores (recipient_id, tag, pass_count, attempt_count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (recipient_id, tag) DO UPDATE
		SET pass_count = tag_scores.pass_count + $3,
		    attempt_count = tag_scores.attempt_count + $4,
		    updated_at = NOW()
	`, recipientID, tag, passDelta, attemptDelta)
	if err != nil {
		return fmt.Errorf("increment tag score: %w", err)
	}
	return nil
}

// CreateSession issues a new tracking session in pending status.
func (r *TrackingRepo) CreateSession(ctx context.Context, s *domain.TrackingSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracking_sessions (token, recipient_id, job_id, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, s.Token, s.RecipientID, s.JobID, domain.SessionPending)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}
