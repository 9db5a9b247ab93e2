package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
)

type fakeResetter struct {
	owners []*models.Owner
	err    error
	email  string
}

func (f *fakeResetter) ResetByEmail(_ context.Context, email string) ([]*models.Owner, error) {
	f.email = email
	if f.err != nil {
		return nil, f.err
	}
	return f.owners, nil
}

func execute(t *testing.T, r Resetter, args ...string) (string, bool, error) {
	t.Helper()
	released := false
	cmd := newRootCmd(func(context.Context) (Resetter, func(), error) {
		return r, func() { released = true }, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), released, err
}

func TestPortalReset(t *testing.T) {
	r := &fakeResetter{owners: []*models.Owner{
		{Name: "Ada Lovelace", Email: "ada@example.com"},
		{Name: "Ada L.", Email: "ada@example.com"},
	}}
	out, released, err := execute(t, r, "Ada@Example.com")
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, "Ada@Example.com", r.email)
	assert.Equal(t, "Reset portal access for Ada Lovelace ada@example.com\nReset portal access for Ada L. ada@example.com\n", out)
}

func TestPortalReset_NoOwner(t *testing.T) {
	out, _, err := execute(t, &fakeResetter{}, "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, "No owner found with email nobody@example.com; nothing to reset\n", out)
}

func TestPortalReset_Args(t *testing.T) {
	_, _, err := execute(t, &fakeResetter{})
	assert.Error(t, err)

	_, _, err = execute(t, &fakeResetter{}, "a@example.com", "b@example.com")
	assert.Error(t, err)
}

func TestPortalReset_Errors(t *testing.T) {
	_, released, err := execute(t, &fakeResetter{err: apperr.Validation("email is required")}, " ")
	assert.ErrorContains(t, err, "email is required")
	assert.True(t, released)

	cmd := newRootCmd(func(context.Context) (Resetter, func(), error) {
		return nil, nil, errors.New("database: connection refused")
	})
	cmd.SetArgs([]string{"a@example.com"})
	assert.ErrorContains(t, cmd.Execute(), "connection refused")
}
