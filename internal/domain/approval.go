package domain

import (
	"time"

	"github.com/google/uuid"
)

// Rule is the quorum rule of an approval request.
type Rule string

const (
	RuleAll Rule = "ALL"
	RuleAny Rule = "ANY"
)

func (r Rule) Valid() bool {
	return r == RuleAll || r == RuleAny
}

type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

func (d Decision) Valid() bool {
	return d == DecisionPending || d == DecisionApproved || d == DecisionRejected
}

// Outcome is the aggregate result of an approval request.
type Outcome string

const (
	OutcomePending  Outcome = "PENDING"
	OutcomeApproved Outcome = "APPROVED"
	OutcomeRejected Outcome = "REJECTED"
)

func (o Outcome) Terminal() bool {
	return o == OutcomeApproved || o == OutcomeRejected
}

// VersionStatus maps a terminal outcome onto the version state machine.
func (o Outcome) VersionStatus() VersionStatus {
	if o == OutcomeRejected {
		return StatusRejected
	}
	return StatusApproved
}

type ApprovalRequest struct {
	ID                  uuid.UUID  `json:"id"`
	ArtVersionID        uuid.UUID  `json:"art_version_id"`
	Rule                Rule       `json:"rule"`
	RequiredApproverIDs []string   `json:"required_approver_ids"`
	OpenedAt            time.Time  `json:"opened_at"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
	Outcome             *Outcome   `json:"outcome,omitempty"`
	OverriddenBy        *string    `json:"overridden_by,omitempty"`
}

func (r ApprovalRequest) Closed() bool {
	return r.ClosedAt != nil
}

func (r ApprovalRequest) Requires(approverRef string) bool {
	for _, id := range r.RequiredApproverIDs {
		if id == approverRef {
			return true
		}
	}
	return false
}

type ApprovalDecision struct {
	ID                uuid.UUID `json:"id" db:"id"`
	ApprovalRequestID uuid.UUID `json:"approval_request_id" db:"approval_request_id"`
	ApproverRef       string    `json:"approver_ref" db:"approver_ref"`
	Decision          Decision  `json:"decision" db:"decision"`
	Comment           *string   `json:"comment,omitempty" db:"comment"`
	DecidedAt         time.Time `json:"decided_at" db:"decided_at"`
}

// Aggregate resolves a decision set under a quorum rule. A rejection vetoes the
// request in both modes. The result depends only on the set, not on arrival order.
func Aggregate(rule Rule, required []string, decisions []ApprovalDecision) Outcome {
	approved := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		switch d.Decision {
		case DecisionRejected:
			return OutcomeRejected
		case DecisionApproved:
			approved[d.ApproverRef] = true
		}
	}

	switch rule {
	case RuleAll:
		if len(required) == 0 {
			return OutcomePending
		}
		for _, id := range required {
			if !approved[id] {
				return OutcomePending
			}
		}
		return OutcomeApproved
	case RuleAny:
		if len(approved) > 0 {
			return OutcomeApproved
		}
	}
	return OutcomePending
}

// AggregateRequest is Aggregate applied to a stored request.
func AggregateRequest(req ApprovalRequest, decisions []ApprovalDecision) Outcome {
	return Aggregate(req.Rule, req.RequiredApproverIDs, decisions)
}

// ApproverState is one row of the per-approver breakdown.
type ApproverState struct {
	ApproverRef string     `json:"approver_ref"`
	Required    bool       `json:"required"`
	Decision    Decision   `json:"decision"`
	Comment     *string    `json:"comment,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

// Breakdown lists required approvers first, in request order, followed by
// any other approvers that decided. Required approvers without a decision are PENDING.
func Breakdown(req ApprovalRequest, decisions []ApprovalDecision) []ApproverState {
	byRef := make(map[string]ApprovalDecision, len(decisions))
	for _, d := range decisions {
		byRef[d.ApproverRef] = d
	}

	states := make([]ApproverState, 0, len(req.RequiredApproverIDs)+len(decisions))
	seen := make(map[string]bool, len(req.RequiredApproverIDs))
	for _, id := range req.RequiredApproverIDs {
		seen[id] = true
		state := ApproverState{ApproverRef: id, Required: true, Decision: DecisionPending}
		if d, ok := byRef[id]; ok {
			at := d.DecidedAt
			state.Decision = d.Decision
			state.Comment = d.Comment
			state.DecidedAt = &at
		}
		states = append(states, state)
	}
	for _, d := range decisions {
		if seen[d.ApproverRef] {
			continue
		}
		at := d.DecidedAt
		states = append(states, ApproverState{
			ApproverRef: d.ApproverRef,
			Decision:    d.Decision,
			Comment:     d.Comment,
			DecidedAt:   &at,
		})
	}
	return states
}

// Resolver computes the outcome of a request from its current decision set. It is
// evaluated inside the transaction that records a decision.
type Resolver func(req ApprovalRequest, decisions []ApprovalDecision) Outcome

// DecisionResult is the state of a request right after a decision was recorded.
type DecisionResult struct {
	Request   ApprovalRequest
	Decisions []ApprovalDecision
	Outcome   Outcome
	// Closed is true when this decision moved the request to a terminal outcome.
	Closed bool
}

// Override is the attribution recorded for an administrative approval.
type Override struct {
	VersionID uuid.UUID
	ActorRef  string
	At        time.Time
}
