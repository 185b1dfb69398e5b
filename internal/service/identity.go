package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"artreview/internal/auth"
	"artreview/internal/domain"
)

const guestResolveAttempts = 3

type IdentityResolver struct {
	guests GuestStore
	logger *slog.Logger
}

func NewIdentityResolver(guests GuestStore, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{
		guests: guests,
		logger: logger.With(slog.String("component", "identity")),
	}
}

// ResolveGuest returns the identity owning email, creating it on first use.
// Concurrent first uses of one address converge on a single identity.
func (r *IdentityResolver) ResolveGuest(ctx context.Context, email string, name *string) (*domain.GuestIdentity, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < guestResolveAttempts; attempt++ {
		existing, err := r.guests.GetByEmail(ctx, normalized)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		guest := &domain.GuestIdentity{ID: uuid.New(), Email: normalized, Name: cleanName(name)}
		inserted, err := r.guests.Insert(ctx, guest)
		if err != nil {
			return nil, err
		}
		if inserted {
			r.logger.Info("guest identity created", slog.String("guest_id", guest.ID.String()))
			return guest, nil
		}
	}
	return nil, fmt.Errorf("%w: guest identity for %s could not be resolved", domain.ErrConflict, normalized)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", domain.Validationf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return "", domain.Validationf("invalid email address")
	}
	return email, nil
}

func cleanName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ResolveInternal maps an authenticated session principal to an internal identity.
func (r *IdentityResolver) ResolveInternal(p *auth.Principal) (*domain.InternalIdentity, error) {
	if p == nil || p.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return &domain.InternalIdentity{
		UserID:       p.UserID,
		Email:        p.Email,
		Name:         p.Name,
		ProjectOwner: p.IsOwner(),
	}, nil
}
