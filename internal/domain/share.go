package domain

import (
	"time"

	"github.com/google/uuid"
)

type SubjectType string

const SubjectArt SubjectType = "ART"

type SharedLink struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Token       string      `json:"token" db:"token"`
	SubjectType SubjectType `json:"subject_type" db:"subject_type"`
	SubjectID   uuid.UUID   `json:"subject_id" db:"subject_id"`
	ReadOnly    bool        `json:"read_only" db:"read_only"`
	CanComment  bool        `json:"can_comment" db:"can_comment"`
	CanDownload bool        `json:"can_download" db:"can_download"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// ExpiredAt reports whether the link is no longer usable at t.
func (l SharedLink) ExpiredAt(t time.Time) bool {
	return l.ExpiresAt != nil && !t.Before(*l.ExpiresAt)
}

// Action is what a guest is trying to do with a share token.
type Action string

const (
	ActionView     Action = "VIEW"
	ActionComment  Action = "COMMENT"
	ActionApprove  Action = "APPROVE"
	ActionDownload Action = "DOWNLOAD"
)

// Capability is issued by the access gate for a single request and is never stored.
type Capability struct {
	LinkID      uuid.UUID `json:"-"`
	SubjectID   uuid.UUID `json:"subject_id"`
	ReadOnly    bool      `json:"read_only"`
	CanComment  bool      `json:"can_comment"`
	CanDownload bool      `json:"can_download"`
}

// CanWrite reports whether feedback and decisions may be submitted.
func (c Capability) CanWrite() bool {
	return c.CanComment && !c.ReadOnly
}

func (c Capability) Allows(action Action) bool {
	switch action {
	case ActionView:
		return true
	case ActionComment, ActionApprove:
		return c.CanWrite()
	case ActionDownload:
		return c.CanDownload
	}
	return false
}

func CapabilityOf(link SharedLink) Capability {
	return Capability{
		LinkID:      link.ID,
		SubjectID:   link.SubjectID,
		ReadOnly:    link.ReadOnly,
		CanComment:  link.CanComment,
		CanDownload: link.CanDownload,
	}
}
