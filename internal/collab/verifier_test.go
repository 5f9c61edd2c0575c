package collab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivechat/relay/internal/domain"
)

func TestVerifyRoundtrip(t *testing.T) {
	user, err := domain.NewUser("u1", "alice", domain.RoleSuperAdmin)
	require.NoError(t, err)

	token, err := SignToken("secret", user, time.Minute)
	require.NoError(t, err)

	got, err := NewJWTVerifier("secret").Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.HasRole(domain.RoleSuperAdmin))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	user, _ := domain.NewUser("u1", "alice")
	token, err := SignToken("secret", user, time.Minute)
	require.NoError(t, err)

	_, err = NewJWTVerifier("other").Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrBadToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	user, _ := domain.NewUser("u1", "alice")
	token, err := SignToken("secret", user, -time.Minute)
	require.NoError(t, err)

	_, err = NewJWTVerifier("secret").Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrBadToken)
}

func TestVerifyRejectsMissingToken(t *testing.T) {
	_, err := NewJWTVerifier("secret").Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrBadToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewJWTVerifier("secret").Verify(context.Background(), "not.a.jwt")
	require.ErrorIs(t, err, ErrBadToken)
}
