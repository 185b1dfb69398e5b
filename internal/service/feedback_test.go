package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artreview/internal/domain"
)

func strPtr(s string) *string { return &s }

func f64(v float64) *float64 { return &v }

func TestGuestPostsTwiceThroughShareLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	art := h.createArt(t)
	v := h.upload(t, art.ID, true)
	link := h.link(t, art.ID, LinkOptions{CanComment: true})

	post := func(email, text string) *domain.FeedbackItem {
		capability, err := h.gate.Authorize(ctx, link.Token, art.ID, domain.ActionComment)
		require.NoError(t, err)
		guest, err := h.identity.ResolveGuest(ctx, email, nil)
		require.NoError(t, err)
		item, err := h.feedback.Post(ctx, PostInput{
			VersionID: v.ID,
			Author:    domain.GuestActor(*guest, capability),
			Kind:      domain.FeedbackText,
			Content:   strPtr(text),
		})
		require.NoError(t, err)
		return item
	}

	first := post("g@x.com", "make the logo bigger")
	h.clock.Advance(time.Second)
	second := post(" G@X.com ", "and the headline too")

	assert.Equal(t, first.AuthorRef, second.AuthorRef)
	assert.Equal(t, 1, h.guests.inserts)

	items, err := h.feedback.ListByVersion(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "make the logo bigger", *items[0].Content)
	assert.Equal(t, domain.FeedbackOpen, items[1].Status)
}

func TestFeedbackThroughExpiredLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	art := h.createArt(t)
	v := h.upload(t, art.ID, false)
	ttl := 24 * time.Hour
	link := h.link(t, art.ID, LinkOptions{CanComment: true, ExpiresIn: &ttl})
	guest, err := h.identity.ResolveGuest(ctx, "late@x.com", strPtr("Late"))
	require.NoError(t, err)

	postAt := func(at time.Time) error {
		h.clock.Set(at)
		capability, err := h.gate.Authorize(ctx, link.Token, art.ID, domain.ActionComment)
		if err != nil {
			return err
		}
		_, err = h.feedback.Post(ctx, PostInput{
			VersionID: v.ID,
			Author:    domain.GuestActor(*guest, capability),
			Kind:      domain.FeedbackText,
			Content:   strPtr("hello"),
		})
		return err
	}

	assert.NoError(t, postAt(link.ExpiresAt.Add(-time.Second)))
	assert.ErrorIs(t, postAt(*link.ExpiresAt), domain.ErrExpiredLink)
}

func TestPostGuestChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	art := h.createArt(t)
	v := h.upload(t, art.ID, false)
	guest := domain.GuestIdentity{ID: uuid.New(), Email: "g@x.com"}

	tests := []struct {
		name    string
		author  domain.Actor
		wantErr error
	}{
		{"anonymous", domain.Actor{}, domain.ErrUnauthenticated},
		{"guest without capability", domain.Actor{Ref: guest.ID.String(), Guest: true}, domain.ErrForbidden},
		{"other art", domain.GuestActor(guest, domain.Capability{SubjectID: uuid.New(), CanComment: true}), domain.ErrScopeMismatch},
		{"comments disabled", domain.GuestActor(guest, domain.Capability{SubjectID: art.ID}), domain.ErrForbidden},
		{"read-only", domain.GuestActor(guest, domain.Capability{SubjectID: art.ID, ReadOnly: true}), domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.feedback.Post(ctx, PostInput{VersionID: v.ID, Author: tt.author, Kind: domain.FeedbackText, Content: strPtr("hi")})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPostValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	art := h.createArt(t)
	v := h.upload(t, art.ID, false)
	author := internalActor("designer")

	tests := []struct {
		name string
		in   PostInput
	}{
		{"unknown kind", PostInput{Kind: "VIDEO", Content: strPtr("x")}},
		{"text without content", PostInput{Kind: domain.FeedbackText}},
		{"text only markup", PostInput{Kind: domain.FeedbackText, Content: strPtr("<script>x</script>")}},
		{"text too long", PostInput{Kind: domain.FeedbackText, Content: strPtr(strings.Repeat("a", maxFeedbackLength+1))}},
		{"audio without ref", PostInput{Kind: domain.FeedbackAudio}},
		{"audio from another art", PostInput{Kind: domain.FeedbackAudio, AudioRef: strPtr(uuid.NewString() + "/v1/attachments/a.mp3")}},
		{"partial position", PostInput{Kind: domain.FeedbackText, Content: strPtr("x"), Position: &domain.PositionInput{RelX: f64(0.5)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.VersionID = v.ID
			tt.in.Author = author
			_, err := h.feedback.Post(ctx, tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := h.feedback.Post(ctx, PostInput{VersionID: uuid.New(), Author: author, Kind: domain.FeedbackText, Content: strPtr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostClampsPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	art := h.createArt(t)
	v := h.upload(t, art.ID, false)

	tests := []struct {
		name       string
		relX, relY float64
		wantX      float64
		wantY      float64
	}{
		{"inside", 0.25, 0.75, 0.25, 0.75},
		{"above range", 1.4, 3, 1, 1},
		{"below range", -0.2, -5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := h.feedback.Post(ctx, PostInput{
				VersionID: v.ID,
				Author:    internalActor("designer"),
				Kind:      domain.FeedbackText,
				Content:   strPtr("here"),
				Position:  &domain.PositionInput{RelX: f64(tt.relX), RelY: f64(tt.relY), AbsX: f64(640), AbsY: f64(-12)},
			})
			require.NoError(t, err)
			require.NotNil(t, item.Position)
			assert.Equal(t, tt.wantX, item.Position.RelX)
			assert.Equal(t, tt.wantY, item.Position.RelY)
			assert.Equal(t, 640.0, item.Position.AbsX)
			assert.Equal(t, -12.0, item.Position.AbsY, "absolute pixels are stored as submitted")
		})
	}
}

func TestPostSanitizesAndAcceptsAudio(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	art := h.createArt(t)
	v := h.upload(t, art.ID, false)

	text, err := h.feedback.Post(ctx, PostInput{
		VersionID: v.ID,
		Author:    internalActor("designer"),
		Kind:      domain.FeedbackText,
		Content:   strPtr(`<img src=x onerror=alert(1)>shift the <i>title</i> left`),
	})
	require.NoError(t, err)
	assert.Equal(t, "shift the title left", *text.Content)

	clip, err := h.ingestion.AttachAudio(ctx, AttachmentInput{ArtID: art.ID, VersionNumber: 1, ContentType: "audio/ogg", Data: []byte("OggS")})
	require.NoError(t, err)
	audio, err := h.feedback.Post(ctx, PostInput{VersionID: v.ID, Author: internalActor("designer"), Kind: domain.FeedbackAudio, AudioRef: &clip.Path})
	require.NoError(t, err)
	assert.Equal(t, clip.Path, *audio.AudioRef)
	assert.Nil(t, audio.Content)
}

func TestSetStatusAllowsAnyTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	art := h.createArt(t)
	v := h.upload(t, art.ID, false)
	item, err := h.feedback.Post(ctx, PostInput{VersionID: v.ID, Author: internalActor("d"), Kind: domain.FeedbackText, Content: strPtr("x")})
	require.NoError(t, err)

	for _, status := range []domain.FeedbackStatus{domain.FeedbackArchived, domain.FeedbackOpen, domain.FeedbackResolved, domain.FeedbackInReview} {
		got, err := h.feedback.SetStatus(ctx, item.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}

	_, err = h.feedback.SetStatus(ctx, item.ID, "DONE")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.feedback.SetStatus(ctx, uuid.New(), domain.FeedbackOpen)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetReturnsStoredItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	art := h.createArt(t)
	v := h.upload(t, art.ID, false)
	item, err := h.feedback.Post(ctx, PostInput{VersionID: v.ID, Author: internalActor("d"), Kind: domain.FeedbackText, Content: strPtr("<b>crop</b> it")})
	require.NoError(t, err)

	got, err := h.feedback.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ArtVersionID)
	assert.Equal(t, item.Content, got.Content)

	_, err = h.feedback.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAllForArtGroupsByVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	art := h.createArt(t)
	v1 := h.upload(t, art.ID, false)
	v2 := h.upload(t, art.ID, false)
	h.upload(t, art.ID, false)

	for i, v := range []*domain.ArtVersion{v1, v1, v2} {
		h.clock.Advance(time.Second)
		_, err := h.feedback.Post(ctx, PostInput{VersionID: v.ID, Author: internalActor("d"), Kind: domain.FeedbackText, Content: strPtr(fmt.Sprintf("note %d", i))})
		require.NoError(t, err)
	}

	groups, err := h.feedback.ListAllForArt(ctx, art.ID)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, 1, groups[0].VersionNumber)
	assert.Len(t, groups[0].Items, 2)
	assert.Equal(t, "note 0", *groups[0].Items[0].Content)
	assert.Len(t, groups[1].Items, 1)
	assert.Empty(t, groups[2].Items)

	_, err = h.feedback.ListAllForArt(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
