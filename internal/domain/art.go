package domain

import (
	"time"

	"github.com/google/uuid"
)

// VersionStatus is the review state of a single art version.
type VersionStatus string

const (
	StatusDraft         VersionStatus = "DRAFT"
	StatusPendingReview VersionStatus = "PENDING_REVIEW"
	StatusInReview      VersionStatus = "IN_REVIEW"
	StatusApproved      VersionStatus = "APPROVED"
	StatusRejected      VersionStatus = "REJECTED"
)

func (s VersionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusInReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Reviewable reports whether a request can be opened against a version in this state.
func (s VersionStatus) Reviewable() bool {
	return s == StatusDraft || s == StatusPendingReview
}

type FileKind string

const (
	FileSource     FileKind = "SOURCE"
	FilePreview    FileKind = "PREVIEW"
	FileAttachment FileKind = "ATTACHMENT"
)

func (k FileKind) Valid() bool {
	return k == FileSource || k == FilePreview || k == FileAttachment
}

type Art struct {
	ID                   uuid.UUID     `json:"id" db:"id"`
	Name                 string        `json:"name" db:"name"`
	Kind                 string        `json:"kind" db:"kind"`
	ProjectID            string        `json:"project_id" db:"project_id"`
	AuthorID             string        `json:"author_id" db:"author_id"`
	CurrentVersionNumber int           `json:"current_version_number" db:"current_version_number"`
	CurrentStatus        VersionStatus `json:"current_status" db:"current_status"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
}

// ArtVersion is immutable once written except for its review status and the
// override attribution stamped by an administrative approval.
type ArtVersion struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	ArtID          uuid.UUID     `json:"art_id" db:"art_id"`
	VersionNumber  int           `json:"version_number" db:"version_number"`
	Status         VersionStatus `json:"status" db:"status"`
	SourceFileRef  string        `json:"source_file_ref" db:"source_file_ref"`
	PreviewFileRef *string       `json:"preview_file_ref,omitempty" db:"preview_file_ref"`
	OverrideBy     *string       `json:"override_by,omitempty" db:"override_by"`
	OverrideAt     *time.Time    `json:"override_at,omitempty" db:"override_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

type ArtFile struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ArtID           uuid.UUID `json:"art_id" db:"art_id"`
	VersionNumber   int       `json:"version_number" db:"version_number"`
	Kind            FileKind  `json:"kind" db:"kind"`
	Path            string    `json:"path" db:"path"`
	MIME            string    `json:"mime" db:"mime"`
	SizeBytes       int64     `json:"size_bytes" db:"size_bytes"`
	Width           *int      `json:"width,omitempty" db:"width"`
	Height          *int      `json:"height,omitempty" db:"height"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty" db:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
