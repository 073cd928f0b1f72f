// Package tracking implements the session state machine: at-most-once
// view recording, append-only interaction recording, and pass/fail scoring
// with per-tag mastery aggregation.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/pkg/logger"
)

// Service implements the tracking state machine. Sessions move
// pending → opened → {passed|failed}; all cross-request state lives in the
// repository, so the service itself holds no locks and is safe for
// concurrent use.
type Service struct {
	repo Repository
}

// NewService creates a tracking service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordView marks the session opened. The first call performs the
// pending → opened transition; retries and duplicate beacons are no-ops.
// A storage write failure is soft: view tracking is non-critical, so it is
// logged and swallowed. An unknown token is still a hard failure.
func (s *Service) RecordView(ctx context.Context, token string) error {
	if _, err := s.repo.GetSession(ctx, token); err != nil {
		return err
	}

	transitioned, err := s.repo.MarkOpened(ctx, token, time.Now().UTC())
	if err != nil {
		logger.Warn("view tracking write failed", "token", token, "error", err.Error())
		return nil
	}
	if transitioned {
		logger.Info("session opened", "token", token)
	}
	return nil
}

// RecordInteraction appends one recipient action. Interactions are
// independent of the phase state machine: any interaction against a valid
// session is recorded regardless of status, with no transition effect.
// Storage failures are hard; the caller must know the record was lost.
func (s *Service) RecordInteraction(ctx context.Context, token, element string, kind domain.InteractionKind, value *string) error {
	if _, err := s.repo.GetSession(ctx, token); err != nil {
		return err
	}

	in := &domain.Interaction{
		ID:           uuid.New().String(),
		SessionToken: token,
		Element:      element,
		Kind:         kind,
		Value:        value,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.AppendInteraction(ctx, in); err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	return nil
}

// RecordScore applies a score submission for the given content. The phase
// is decided by matching contentID against the parent job's training and
// follow-up content; score ≥ PassThreshold yields passed, else failed. On
// a pass, every tag of the scored content increments the recipient's
// mastery aggregate. Storage failures are hard.
func (s *Service) RecordScore(ctx context.Context, token, contentID string, score int) (domain.SessionStatus, error) {
	if score < 0 || score > 100 {
		return "", ErrInvalidScore
	}

	session, err := s.repo.GetSession(ctx, token)
	if err != nil {
		return "", err
	}
	job, err := s.repo.GetJob(ctx, session.JobID)
	if err != nil {
		return "", err
	}

	var phase domain.TrainingPhase
	switch contentID {
	case job.TrainingContentID:
		phase = domain.PhaseTraining
	case job.FollowupContentID:
		phase = domain.PhaseFollowup
	default:
		return "", ErrUnknownContent
	}

	status := domain.SessionFailed
	if score >= domain.PassThreshold {
		status = domain.SessionPassed
	}

	if err := s.repo.RecordPhaseScore(ctx, token, phase, score, status, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("record %s score: %w", phase, err)
	}

	if status == domain.SessionPassed {
		if err := s.updateTagMastery(ctx, session.RecipientID, contentID); err != nil {
			return "", err
		}
	}

	logger.Info("score recorded",
		"token", token, "phase", string(phase), "score", score, "status", string(status))
	return status, nil
}

// updateTagMastery increments the pass and attempt counters for every tag
// of the passed content.
func (s *Service) updateTagMastery(ctx context.Context, recipientID, contentID string) error {
	tags, err := s.repo.GetContentTags(ctx, contentID)
	if err != nil {
		return fmt.Errorf("load content tags: %w", err)
	}
	for _, tag := range tags {
		if err := s.repo.IncrementTagScore(ctx, recipientID, tag, 1, 1); err != nil {
			return fmt.Errorf("increment tag score %s: %w", tag, err)
		}
	}
	return nil
}
