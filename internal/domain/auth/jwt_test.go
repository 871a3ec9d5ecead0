package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appctx "stockledger/internal/core/context"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret", ""))

	token, expires, err := svc.GenerateAccessToken(appctx.UserContext{
		UserID:      "u-1",
		BranchID:    "b-1",
		Roles:       []string{"clerk"},
		Permissions: []string{"transfers.sub_to_sub"},
	})
	require.NoError(t, err)
	require.True(t, expires.After(time.Now()))

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "u-1", user.UserID)
	require.Equal(t, "b-1", user.BranchID)
	require.Equal(t, []string{"transfers.sub_to_sub"}, user.Permissions)
	require.False(t, user.IsAdmin)
}

func TestJWTService_RejectsForeignTokens(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("secret", "other"))
	token, _, err := issuer.GenerateAccessToken(appctx.UserContext{UserID: "u-1"})
	require.NoError(t, err)

	_, err = NewJWTService(DefaultJWTConfig("secret", "stockledger")).ValidateToken(token)
	require.Error(t, err, "issuer mismatch")

	_, err = NewJWTService(DefaultJWTConfig("another", "other")).ValidateToken(token)
	require.Error(t, err, "signature mismatch")

	expired := NewJWTService(JWTConfig{Secret: "secret", Issuer: "other", AccessTokenTTL: -time.Minute})
	token, _, err = expired.GenerateAccessToken(appctx.UserContext{UserID: "u-1"})
	require.NoError(t, err)
	_, err = issuer.ValidateToken(token)
	require.Error(t, err)
}
