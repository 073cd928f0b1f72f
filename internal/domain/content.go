package domain

import "time"

// ContentKind enumerates the closed set of uploadable content types.
type ContentKind string

const (
	KindSCORM    ContentKind = "scorm"
	KindHTML     ContentKind = "html"
	KindVideo    ContentKind = "video"
	KindTraining ContentKind = "training"
	KindLanding  ContentKind = "landing"
	KindEmail    ContentKind = "email"
)

// Valid reports whether k is one of the recognized content kinds.
func (k ContentKind) Valid() bool {
	switch k {
	case KindSCORM, KindHTML, KindVideo, KindTraining, KindLanding, KindEmail:
		return true
	}
	return false
}

// Content is a single uploaded training or assessment artifact.
// ArtifactPath is nil until the annotation pipeline has produced the
// processed, tracking-instrumented document; it is set exactly once.
// Difficulty is only meaningful for email content (1-3).
type Content struct {
	ID           string      `json:"id"`
	Kind         ContentKind `json:"kind"`
	ArtifactPath *string     `json:"artifact_path,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
	Difficulty   *int        `json:"difficulty,omitempty"`
	OwnerID      *string     `json:"owner_id,omitempty"`
	DomainID     *string     `json:"domain_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// EducationalTags is the closed vocabulary of interactive-element category
// tags the annotation service may assign to training content.
var EducationalTags = []string{
	"navigation", "form-field", "button", "hyperlink", "media-control",
	"quiz-option", "drag-drop", "download", "attachment", "credential-entry",
}

// PhishingCueTags is the closed vocabulary of phishing-cue indicator names
// assignable to simulated phishing emails.
var PhishingCueTags = []string{
	"spoofed-sender", "urgency", "generic-greeting", "suspicious-link",
	"mismatched-url", "attachment-lure", "credential-request", "reward-bait",
	"threat-pressure", "brand-impersonation", "spelling-grammar",
	"unusual-request",
}

// InVocabulary reports whether tag belongs to the given closed vocabulary.
func InVocabulary(tag string, vocab []string) bool {
	for _, v := range vocab {
		if v == tag {
			return true
		}
	}
	return false
}
