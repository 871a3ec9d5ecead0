package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsTimeOrdered(t *testing.T) {
	a, b := New(), New()
	assert.Equal(t, 7, int(a.Version()))
	assert.Less(t, a.String(), b.String())
}

func TestParseOptional(t *testing.T) {
	v, err := ParseOptional("  ")
	require.NoError(t, err)
	assert.Nil(t, v)

	want := New()
	v, err = ParseOptional(want.String())
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, want, *v)

	_, err = ParseOptional("nope")
	assert.Error(t, err)
}

func TestParseList(t *testing.T) {
	a, b := New(), New()
	got, err := ParseList([]string{a.String(), " " + b.String()})
	require.NoError(t, err)
	assert.Equal(t, []ID{a, b}, got)

	_, err = ParseList([]string{a.String(), "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id 1")
}

func TestDerive_IsStable(t *testing.T) {
	ns := New()
	a := Derive(ns, "purchase:1")
	assert.Equal(t, a, Derive(ns, "purchase:1"))
	assert.NotEqual(t, a, Derive(ns, "purchase:2"))
	assert.NotEqual(t, a, Derive(New(), "purchase:1"))
}
