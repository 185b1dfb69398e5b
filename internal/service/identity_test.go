package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artreview/internal/auth"
	"artreview/internal/domain"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"g@x.com", "g@x.com", false},
		{"  Ana.B@Studio.Example.org ", "ana.b@studio.example.org", false},
		{"", "", true},
		{"not-an-email", "", true},
		{"Ana <ana@x.com>", "", true},
		{"ana@localhost", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeEmail(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveGuestReusesIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.identity.ResolveGuest(ctx, "g@x.com", strPtr("  Gina "))
	require.NoError(t, err)
	require.NotNil(t, first.Name)
	assert.Equal(t, "Gina", *first.Name)

	again, err := h.identity.ResolveGuest(ctx, "G@x.com", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, h.guests.inserts)
}

func TestResolveGuestLosingRaceReadsWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	winner, err := h.identity.ResolveGuest(ctx, "g@x.com", nil)
	require.NoError(t, err)

	h.guests.hideOnce = true
	got, err := h.identity.ResolveGuest(ctx, "g@x.com", nil)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, 1, h.guests.inserts)
}

func TestResolveGuestConcurrentFirstUse(t *testing.T) {
	h := newHarness(t)

	const callers = 10
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := h.identity.ResolveGuest(context.Background(), "new@x.com", nil)
			if assert.NoError(t, err) {
				ids[i] = g.ID.String()
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, h.guests.inserts)
}

func TestResolveInternal(t *testing.T) {
	h := newHarness(t)

	_, err := h.identity.ResolveInternal(nil)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = h.identity.ResolveInternal(&auth.Principal{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	id, err := h.identity.ResolveInternal(&auth.Principal{UserID: "u-1", Email: "u@x.com", Role: auth.RoleOwner})
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UserID)
	assert.True(t, id.ProjectOwner)

	id, err = h.identity.ResolveInternal(&auth.Principal{UserID: "u-2", Role: "member"})
	require.NoError(t, err)
	assert.False(t, id.ProjectOwner)
}
