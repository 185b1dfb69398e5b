package handler

import (
	"net/http"

	"github.com/google/uuid"

	"artreview/internal/domain"
	"artreview/internal/service"
)

type postFeedbackRequest struct {
	VersionID uuid.UUID             `json:"versionId"`
	Kind      domain.FeedbackKind   `json:"kind"`
	Content   *string               `json:"content,omitempty"`
	AudioRef  *string               `json:"audioRef,omitempty"`
	Position  *domain.PositionInput `json:"position,omitempty"`
	guestDetails
}

type feedbackStatusRequest struct {
	Status domain.FeedbackStatus `json:"status"`
}

func (h *Handler) PostFeedback(w http.ResponseWriter, r *http.Request) {
	var req postFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	v, err := h.ledger.GetVersionByID(r.Context(), req.VersionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	author, err := h.actor(r, v.ArtID, domain.ActionComment, req.guestDetails)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	item, err := h.feedback.Post(r.Context(), service.PostInput{
		VersionID: v.ID,
		Author:    author,
		Kind:      req.Kind,
		Content:   req.Content,
		AudioRef:  req.AudioRef,
		Position:  req.Position,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) SetFeedbackStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := h.internalUser(r); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req feedbackStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	item, err := h.feedback.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.feedback.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.ledger.GetVersionByID(r.Context(), item.ArtVersionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.access(r, v.ArtID, domain.ActionView); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) ListVersionFeedback(w http.ResponseWriter, r *http.Request) {
	versionID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.ledger.GetVersionByID(r.Context(), versionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.access(r, v.ArtID, domain.ActionView); err != nil {
		h.fail(w, r, err)
		return
	}

	items, err := h.feedback.ListByVersion(r.Context(), versionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) ListArtFeedback(w http.ResponseWriter, r *http.Request) {
	artID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.access(r, artID, domain.ActionView); err != nil {
		h.fail(w, r, err)
		return
	}

	groups, err := h.feedback.ListAllForArt(r.Context(), artID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}
