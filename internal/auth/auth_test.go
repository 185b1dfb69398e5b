package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupVerifier(t *testing.T) (*Verifier, *RedisRevocations, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	revocations, err := NewRedisRevocations(context.Background(), "redis://"+s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { revocations.Close() })

	v := NewVerifier(Config{Secret: testSecret, Issuer: "artreview"}, revocations)
	return v, revocations, s
}

func TestVerifyRoundTrip(t *testing.T) {
	v, _, _ := setupVerifier(t)
	token, err := v.Issue(Principal{UserID: "u-1", Email: "ana@studio.test", Name: "Ana", Role: RoleOwner}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, "ana@studio.test", p.Email)
	assert.True(t, p.IsOwner())
	assert.NotEmpty(t, p.TokenID)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v, _, _ := setupVerifier(t)
	ctx := context.Background()

	_, err := v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = v.Verify(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Issue(Principal{UserID: "u-1"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewVerifier(Config{Secret: "ffffffffffffffffffffffffffffffff", Issuer: "artreview"}, nil)
	forged, err := other.Issue(Principal{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(ctx, unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokedTokenIsRejectedUntilExpiry(t *testing.T) {
	v, revocations, s := setupVerifier(t)
	ctx := context.Background()

	token, err := v.Issue(Principal{UserID: "u-2"}, time.Hour)
	require.NoError(t, err)
	p, err := v.Verify(ctx, token)
	require.NoError(t, err)

	require.NoError(t, revocations.Revoke(ctx, p.TokenID, p.ExpiresAt))
	_, err = v.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrRevokedToken)

	ttl := s.TTL("revoked:" + p.TokenID)
	assert.True(t, ttl > 0 && ttl <= time.Hour, "ttl %v", ttl)

	s.FastForward(2 * time.Hour)
	revoked, err := revocations.IsRevoked(ctx, p.TokenID)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestVerifierRevoke(t *testing.T) {
	v, _, _ := setupVerifier(t)
	ctx := context.Background()

	token, err := v.Issue(Principal{UserID: "u-3"}, time.Hour)
	require.NoError(t, err)
	p, err := v.Verify(ctx, token)
	require.NoError(t, err)

	require.NoError(t, v.Revoke(ctx, p))
	_, err = v.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrRevokedToken)

	assert.ErrorIs(t, v.Revoke(ctx, &Principal{UserID: "u-3"}), ErrInvalidToken)

	unconfigured := NewVerifier(Config{Secret: testSecret}, nil)
	assert.Error(t, unconfigured.Revoke(ctx, p))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := BearerToken(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.Header.Set("Authorization", "Basic abc")
	_, err = BearerToken(r)
	assert.ErrorIs(t, err, ErrInvalidToken)

	r.Header.Set("Authorization", "bearer abc.def.ghi")
	token, err := BearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}

func TestPrincipalContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	ctx := WithPrincipal(context.Background(), &Principal{UserID: "u-3"})
	assert.Equal(t, "u-3", FromContext(ctx).UserID)
}
