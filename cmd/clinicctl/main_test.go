package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

const testKey = "clinicctl-test-signing-key"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestTokenIssue(t *testing.T) {
	out, err := execute(t, "token", "issue", "--user-id", "42", "--role", "staff", "--provider-id", "7", "--signing-key", testKey)
	require.NoError(t, err)

	actor, err := auth.NewTokenService(testKey, auth.TokenIssuer, time.Hour).Parse(out)
	require.NoError(t, err)
	assert.Equal(t, int64(42), actor.UserID)
	assert.Equal(t, auth.RoleStaff, actor.Role)
	require.NotNil(t, actor.ProviderID)
	assert.Equal(t, int64(7), *actor.ProviderID)
}

func TestTokenIssueAdminWithoutProvider(t *testing.T) {
	out, err := execute(t, "token", "issue", "--user-id", "1", "--role", "admin", "--signing-key", testKey)
	require.NoError(t, err)

	actor, err := auth.NewTokenService(testKey, auth.TokenIssuer, time.Hour).Parse(out)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, actor.Role)
	assert.Nil(t, actor.ProviderID)
}

func TestTokenIssueRejections(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "")

	_, err := execute(t, "token", "issue", "--role", "admin", "--signing-key", testKey)
	assert.Error(t, err, "user-id is required")

	_, err = execute(t, "token", "issue", "--user-id", "1", "--role", "superuser", "--signing-key", testKey)
	assert.ErrorContains(t, err, "unknown role")

	_, err = execute(t, "token", "issue", "--user-id", "1")
	assert.ErrorContains(t, err, "signing key is required")
}
