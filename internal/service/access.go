package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"artreview/internal/domain"
)

// AccessGate turns a share token into a capability. Expiry is evaluated against the
// injected clock on every call and nothing is cached.
type AccessGate struct {
	links  ShareStore
	clock  Clock
	logger *slog.Logger
}

func NewAccessGate(links ShareStore, clock Clock, logger *slog.Logger) *AccessGate {
	return &AccessGate{
		links:  links,
		clock:  clock,
		logger: logger.With(slog.String("component", "access_gate")),
	}
}

// Authorize checks that token is live, scoped to subjectID and permits action.
func (g *AccessGate) Authorize(ctx context.Context, token string, subjectID uuid.UUID, action domain.Action) (domain.Capability, error) {
	link, err := g.load(ctx, token)
	if err != nil {
		return domain.Capability{}, err
	}
	if link.SubjectID != subjectID {
		return domain.Capability{}, g.deny(domain.ErrScopeMismatch, link)
	}

	capability := domain.CapabilityOf(*link)
	if !capability.Allows(action) {
		return domain.Capability{}, g.deny(domain.ErrForbidden, link)
	}
	return capability, nil
}

// Resolve returns the live link behind token and its capability.
func (g *AccessGate) Resolve(ctx context.Context, token string) (*domain.SharedLink, domain.Capability, error) {
	link, err := g.load(ctx, token)
	if err != nil {
		return nil, domain.Capability{}, err
	}
	return link, domain.CapabilityOf(*link), nil
}

func (g *AccessGate) load(ctx context.Context, token string) (*domain.SharedLink, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, g.deny(domain.ErrInvalidToken, nil)
	}

	link, err := g.links.GetByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, g.deny(domain.ErrInvalidToken, nil)
	}
	if err != nil {
		return nil, err
	}
	if link.ExpiredAt(g.clock.Now()) {
		return nil, g.deny(domain.ErrExpiredLink, link)
	}
	return link, nil
}

func (g *AccessGate) deny(reason error, link *domain.SharedLink) error {
	label := "invalid"
	switch reason {
	case domain.ErrExpiredLink:
		label = "expired"
	case domain.ErrScopeMismatch:
		label = "scope"
	case domain.ErrForbidden:
		label = "forbidden"
	}
	accessDeniedTotal.WithLabelValues(label).Inc()

	if link != nil {
		g.logger.Debug("share access denied",
			slog.String("link_id", link.ID.String()),
			slog.String("reason", reason.Error()),
		)
	}
	return reason
}
