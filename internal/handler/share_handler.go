package handler

import (
	"net/http"
	"time"

	"artreview/internal/service"
)

type createShareRequest struct {
	ReadOnly    bool `json:"readOnly"`
	CanComment  bool `json:"canComment"`
	CanDownload bool `json:"canDownload"`
	// ExpiresIn is the link lifetime in seconds; omitted means no expiry.
	ExpiresIn *int64 `json:"expiresIn,omitempty"`
}

func (h *Handler) CreateShare(w http.ResponseWriter, r *http.Request) {
	if _, err := h.internalUser(r); err != nil {
		h.fail(w, r, err)
		return
	}
	artID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req createShareRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	opts := service.LinkOptions{
		ReadOnly:    req.ReadOnly,
		CanComment:  req.CanComment,
		CanDownload: req.CanDownload,
	}
	if req.ExpiresIn != nil {
		d := time.Duration(*req.ExpiresIn) * time.Second
		opts.ExpiresIn = &d
	}

	link, err := h.shares.CreateLink(r.Context(), artID, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (h *Handler) DeleteShare(w http.ResponseWriter, r *http.Request) {
	if _, err := h.internalUser(r); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.shares.Revoke(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
