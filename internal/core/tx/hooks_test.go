package tx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAfterCommit_RunsImmediatelyOutsideTransaction(t *testing.T) {
	called := false
	AfterCommit(context.Background(), func(context.Context) { called = true })
	require.True(t, called)
}

func TestAfterCommit_DeferredUntilRun(t *testing.T) {
	ctx, run := WithCommitHooks(context.Background())
	require.True(t, InTransaction(ctx))

	var order []int
	AfterCommit(ctx, func(context.Context) { order = append(order, 1) })
	AfterCommit(ctx, func(context.Context) { order = append(order, 2) })
	require.Empty(t, order)

	run(context.Background())
	require.Equal(t, []int{1, 2}, order)

	run(context.Background())
	require.Equal(t, []int{1, 2}, order, "hooks run once")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeAuto, m)

	m, err = ParseMode(" OFF ")
	require.NoError(t, err)
	require.Equal(t, ModeOff, m)

	_, err = ParseMode("sometimes")
	require.Error(t, err)
}
