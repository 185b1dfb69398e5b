package handler

import (
	"net/http"

	"artreview/internal/domain"
	"artreview/internal/service"
)

type openRequestRequest struct {
	Rule          domain.Rule `json:"rule"`
	ApproverIDs   []string    `json:"approverIds"`
	VersionNumber *int        `json:"versionNumber,omitempty"`
}

type decideRequest struct {
	ApproverRef string          `json:"approverRef,omitempty"`
	Decision    domain.Decision `json:"decision"`
	Comment     *string         `json:"comment,omitempty"`
	guestDetails
}

type decisionResponse struct {
	Request   domain.ApprovalRequest `json:"request"`
	Outcome   domain.Outcome         `json:"outcome"`
	Closed    bool                   `json:"closed"`
	Approvers []domain.ApproverState `json:"approvers"`
}

// OpenApprovalRequest closes a version for approval; the current version is used
// unless versionNumber is given.
func (h *Handler) OpenApprovalRequest(w http.ResponseWriter, r *http.Request) {
	if _, err := h.internalUser(r); err != nil {
		h.fail(w, r, err)
		return
	}
	artID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req openRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	v, err := h.ledger.GetVersion(r.Context(), artID, req.VersionNumber)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.ingestion.CloseForApproval(r.Context(), v.ID, req.Rule, req.ApproverIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	_, v, err := h.approvals.Request(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	actor, err := h.actor(r, v.ArtID, domain.ActionApprove, req.guestDetails)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// A session may only decide for itself.
	if !actor.Guest && req.ApproverRef != "" && req.ApproverRef != actor.Ref {
		h.fail(w, r, domain.ErrForbidden)
		return
	}

	result, err := h.approvals.Decide(r.Context(), service.DecideInput{
		RequestID: requestID,
		Actor:     actor,
		Decision:  req.Decision,
		Comment:   req.Comment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{
		Request:   result.Request,
		Outcome:   result.Outcome,
		Closed:    result.Closed,
		Approvers: domain.Breakdown(result.Request, result.Decisions),
	})
}

func (h *Handler) GetApprovals(w http.ResponseWriter, r *http.Request) {
	artID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := versionParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.access(r, artID, domain.ActionView); err != nil {
		h.fail(w, r, err)
		return
	}

	summary, err := h.approvals.Breakdown(r.Context(), artID, n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	user, err := h.internalUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	artID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := versionParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	v, err := h.approvals.Override(r.Context(), artID, n, *user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
