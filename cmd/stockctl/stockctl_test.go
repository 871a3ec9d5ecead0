package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCounterNext(t *testing.T) {
	out, err := execute(t, "counter", "next", "transfer")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "CHN-"), out)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "-0001"), out)
}

func TestCounterNext_UnknownCounter(t *testing.T) {
	_, err := execute(t, "counter", "next", "invoice")
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	_, err := execute(t, "seed", "--branches", "1")
	require.NoError(t, err)
}

func TestProjectionResync(t *testing.T) {
	out, err := execute(t, "projection", "resync")
	require.NoError(t, err)
	assert.Contains(t, out, "failed 0")

	_, err = execute(t, "projection", "resync", "not-an-id")
	assert.Error(t, err)
}

func TestMovementsPurge_InvalidBefore(t *testing.T) {
	_, err := execute(t, "movements", "purge", "--before", "yesterday")
	assert.Error(t, err)
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	_, err := execute(t, "migrate", "up")
	assert.ErrorContains(t, err, "STORAGE_DRIVER=postgres")
}

func TestToken(t *testing.T) {
	out, err := execute(t, "token", "--user", "u-1", "--branch", "b-1", "--perm", "stock.adjust")
	require.NoError(t, err)

	jwt := auth.NewJWTService(auth.DefaultJWTConfig("test-secret", "stockledger"))
	user, err := jwt.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.UserID)
	assert.Equal(t, "b-1", user.BranchID)
	assert.Equal(t, []string{"stock.adjust"}, user.Permissions)
}
