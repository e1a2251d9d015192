// Package authz enforces scope-based authorization for downstream
// operations. This check runs before any outbound call is issued and is
// independent of whatever validation the downstream service performs against
// the bearer token's claims.
package authz

import (
	"fmt"
	"slices"
	"sort"
)

// Operation names for the capital planning tools.
const (
	OpListAssets          = "assets.list"
	OpGetAsset            = "assets.get"
	OpAnalyzeRisk         = "risk.analyze"
	OpOptimizeInvestments = "investments.optimize"
)

// DefaultRequirements maps each operation to the scopes it requires.
func DefaultRequirements() map[string][]string {
	return map[string][]string{
		OpListAssets:          {"assets:read"},
		OpGetAsset:            {"assets:read"},
		OpAnalyzeRisk:         {"risk:analyze"},
		OpOptimizeInvestments: {"investments:write"},
	}
}

// AuthorizationError reports which scopes an operation needed and which the
// session actually held. It is a permission fact, never retried.
type AuthorizationError struct {
	Operation     string
	MissingScopes []string
	HeldScopes    []string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("access denied for %s: missing scope(s) %v, held %v",
		e.Operation, e.MissingScopes, e.HeldScopes)
}

// Enforcer checks a session's granted scopes against the static
// operation→scope table.
type Enforcer struct {
	required map[string][]string
}

// NewEnforcer creates an enforcer with the default operation table.
func NewEnforcer() *Enforcer {
	return NewEnforcerWithRequirements(DefaultRequirements())
}

// NewEnforcerWithRequirements creates an enforcer with a custom table.
func NewEnforcerWithRequirements(required map[string][]string) *Enforcer {
	return &Enforcer{required: required}
}

// Required returns the scopes an operation needs. Unknown operations return
// nil, false.
func (e *Enforcer) Required(operation string) ([]string, bool) {
	scopes, ok := e.required[operation]
	return scopes, ok
}

// Check returns nil when heldScopes covers the operation's requirement, or
// an *AuthorizationError listing exactly the missing scopes. Unknown
// operations are denied.
func (e *Enforcer) Check(operation string, heldScopes []string) error {
	required, ok := e.required[operation]
	if !ok {
		return fmt.Errorf("unknown operation %q", operation)
	}

	var missing []string
	for _, scope := range required {
		if !slices.Contains(heldScopes, scope) {
			missing = append(missing, scope)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)
	return &AuthorizationError{
		Operation:     operation,
		MissingScopes: missing,
		HeldScopes:    slices.Clone(heldScopes),
	}
}
