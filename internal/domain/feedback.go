package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type FeedbackKind string

const (
	FeedbackText  FeedbackKind = "TEXT"
	FeedbackAudio FeedbackKind = "AUDIO"
)

func (k FeedbackKind) Valid() bool {
	return k == FeedbackText || k == FeedbackAudio
}

// FeedbackStatus is advisory triage state; any status may follow any other.
type FeedbackStatus string

const (
	FeedbackOpen     FeedbackStatus = "OPEN"
	FeedbackInReview FeedbackStatus = "IN_REVIEW"
	FeedbackResolved FeedbackStatus = "RESOLVED"
	FeedbackArchived FeedbackStatus = "ARCHIVED"
)

func (s FeedbackStatus) Valid() bool {
	switch s {
	case FeedbackOpen, FeedbackInReview, FeedbackResolved, FeedbackArchived:
		return true
	}
	return false
}

// Position anchors feedback on the rendered preview. Absolute pixels are what the
// author saw when posting and are never recomputed.
type Position struct {
	RelX float64 `json:"rel_x"`
	RelY float64 `json:"rel_y"`
	AbsX float64 `json:"abs_x"`
	AbsY float64 `json:"abs_y"`
}

// PositionInput is a position as submitted by a client, where any coordinate may be missing.
type PositionInput struct {
	RelX *float64 `json:"rel_x"`
	RelY *float64 `json:"rel_y"`
	AbsX *float64 `json:"abs_x"`
	AbsY *float64 `json:"abs_y"`
}

// Normalize requires the relative and absolute pairs together and clamps the
// relative pair into [0,1]. Non-finite values are rejected.
func (in PositionInput) Normalize() (Position, error) {
	coords := []*float64{in.RelX, in.RelY, in.AbsX, in.AbsY}
	for _, c := range coords {
		if c == nil {
			return Position{}, Validationf("position needs rel_x, rel_y, abs_x and abs_y together")
		}
		if math.IsNaN(*c) || math.IsInf(*c, 0) {
			return Position{}, Validationf("position coordinates must be finite")
		}
	}
	return Position{
		RelX: clampUnit(*in.RelX),
		RelY: clampUnit(*in.RelY),
		AbsX: *in.AbsX,
		AbsY: *in.AbsY,
	}, nil
}

func clampUnit(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

type FeedbackItem struct {
	ID           uuid.UUID      `json:"id"`
	ArtVersionID uuid.UUID      `json:"art_version_id"`
	AuthorRef    string         `json:"author_ref"`
	Kind         FeedbackKind   `json:"kind"`
	Content      *string        `json:"content,omitempty"`
	AudioRef     *string        `json:"audio_ref,omitempty"`
	Position     *Position      `json:"position,omitempty"`
	Status       FeedbackStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// VersionFeedback groups the thread of one version for cross-version views.
type VersionFeedback struct {
	VersionID     uuid.UUID      `json:"version_id"`
	VersionNumber int            `json:"version_number"`
	Items         []FeedbackItem `json:"items"`
}
