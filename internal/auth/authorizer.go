package auth

import (
	"context"

	"registry-backend/internal/apperror"
)

type Permission string

const (
	PermTownshipsRead  Permission = "townships:read"
	PermTownshipsWrite Permission = "townships:write"
	PermBranchesRead   Permission = "branches:read"
	PermBranchesWrite  Permission = "branches:write"
	PermUsersRead      Permission = "users:read"
	PermUsersWrite     Permission = "users:write"
	PermChangePassword Permission = "users:change-password"
	PermResetPassword  Permission = "users:reset-password"
	PermAuditRead      Permission = "audit:read"
	// Own session: /me and logout.
	PermSession Permission = "session"
)

// Policy decides whether an authenticated principal holds perm.
type Policy func(p *Principal, perm Permission) bool

// DefaultPolicy lets every authenticated user do everything, except that a
// user who still has to replace a generated password may only do that.
func DefaultPolicy(p *Principal, perm Permission) bool {
	if p.MustChangePassword {
		return perm == PermChangePassword || perm == PermSession
	}
	return true
}

// Authorizer is the per-route capability check.
type Authorizer interface {
	Authorize(ctx context.Context, token string, perm Permission) (*Principal, error)
}

type TokenAuthorizer struct {
	creds  *Service
	policy Policy
}

func NewAuthorizer(creds *Service, policy Policy) *TokenAuthorizer {
	if policy == nil {
		policy = DefaultPolicy
	}
	return &TokenAuthorizer{creds: creds, policy: policy}
}

func (a *TokenAuthorizer) Authorize(ctx context.Context, token string, perm Permission) (*Principal, error) {
	p, err := a.creds.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !a.policy(p, perm) {
		if p.MustChangePassword {
			return nil, apperror.Forbidden("You must change your password before continuing.")
		}
		return nil, apperror.Forbidden("This action is unauthorized.")
	}
	return p, nil
}
