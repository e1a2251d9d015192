package authz_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalplanning/session-broker/authz"
)

func TestCheckAuthorized(t *testing.T) {
	enforcer := authz.NewEnforcer()

	require.NoError(t, enforcer.Check(authz.OpListAssets, []string{"assets:read"}))
	require.NoError(t, enforcer.Check(authz.OpAnalyzeRisk, []string{"assets:read", "risk:analyze"}))
}

func TestCheckReportsExactlyTheMissingScopes(t *testing.T) {
	enforcer := authz.NewEnforcer()

	err := enforcer.Check(authz.OpAnalyzeRisk, []string{"assets:read"})
	require.Error(t, err)

	var authzErr *authz.AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.Equal(t, authz.OpAnalyzeRisk, authzErr.Operation)
	require.Equal(t, []string{"risk:analyze"}, authzErr.MissingScopes)
	require.Equal(t, []string{"assets:read"}, authzErr.HeldScopes)
}

func TestCheckWithNoScopesHeld(t *testing.T) {
	enforcer := authz.NewEnforcer()

	err := enforcer.Check(authz.OpOptimizeInvestments, nil)
	var authzErr *authz.AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.Equal(t, []string{"investments:write"}, authzErr.MissingScopes)
	require.Empty(t, authzErr.HeldScopes)
}

func TestCheckDeniesUnknownOperation(t *testing.T) {
	enforcer := authz.NewEnforcer()

	err := enforcer.Check("assets.delete", []string{"assets:read"})
	require.Error(t, err)

	// An unknown operation is a plain error, not an AuthorizationError:
	// there is no scope the caller could acquire to make it pass.
	var authzErr *authz.AuthorizationError
	require.False(t, errors.As(err, &authzErr))
}

func TestCustomRequirementsTable(t *testing.T) {
	enforcer := authz.NewEnforcerWithRequirements(map[string][]string{
		"reports.generate": {"reports:write", "assets:read"},
	})

	err := enforcer.Check("reports.generate", []string{"assets:read"})
	var authzErr *authz.AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.Equal(t, []string{"reports:write"}, authzErr.MissingScopes)

	required, ok := enforcer.Required("reports.generate")
	require.True(t, ok)
	require.Len(t, required, 2)
}
