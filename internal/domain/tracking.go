package domain

import "time"

// SessionStatus enumerates the lifecycle states of a tracking session.
// Status is monotonic: once a session reaches passed or failed it never
// returns to pending.
type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionPassed  SessionStatus = "passed"
	SessionFailed  SessionStatus = "failed"
)

// PassThreshold is the minimum score that marks a phase as passed.
const PassThreshold = 80

// TrainingPhase identifies which half of a job a score belongs to.
type TrainingPhase string

const (
	PhaseTraining TrainingPhase = "training"
	PhaseFollowup TrainingPhase = "followup"
)

// TrackingSession links a distributed token to a recipient, a parent job,
// and the recipient's completion state. OpenedAt transitions nil to non-nil
// exactly once, on first view.
type TrackingSession struct {
	Token               string        `json:"token"`
	RecipientID         string        `json:"recipient_id"`
	JobID               string        `json:"job_id"`
	OpenedAt            *time.Time    `json:"opened_at,omitempty"`
	TrainingScore       *int          `json:"training_score,omitempty"`
	FollowupScore       *int          `json:"followup_score,omitempty"`
	TrainingCompletedAt *time.Time    `json:"training_completed_at,omitempty"`
	FollowupCompletedAt *time.Time    `json:"followup_completed_at,omitempty"`
	Status              SessionStatus `json:"status"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Job is the parent training job a session belongs to. The tracking state
// machine compares a scored content ID against these two references to
// decide which phase was completed.
type Job struct {
	ID                string    `json:"id"`
	TrainingContentID string    `json:"training_content_id"`
	FollowupContentID string    `json:"followup_content_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// InteractionKind enumerates recipient actions recorded against tagged
// elements inside served content.
type InteractionKind string

const (
	InteractClick  InteractionKind = "click"
	InteractInput  InteractionKind = "input"
	InteractFocus  InteractionKind = "focus"
	InteractSubmit InteractionKind = "submit"
)

// Interaction is an immutable append-only record of one recipient action.
type Interaction struct {
	ID           string          `json:"id"`
	SessionToken string          `json:"session_token"`
	Element      string          `json:"element"`
	Kind         InteractionKind `json:"kind"`
	Value        *string         `json:"value,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TagScore is the per-(recipient, tag) mastery aggregate. Counts only ever
// increase.
type TagScore struct {
	RecipientID  string    `json:"recipient_id"`
	Tag          string    `json:"tag"`
	PassCount    int       `json:"pass_count"`
	AttemptCount int       `json:"attempt_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}
