// Package permsync mirrors organization memberships into an external
// relationship store so downstream services can run their own checks.
package permsync

import (
	"context"

	"github.com/google/uuid"
)

// Membership is one (organization, user, role) relation.
type Membership struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           string
}

type Mirror interface {
	Grant(ctx context.Context, members ...Membership) error
	Revoke(ctx context.Context, m Membership) error
	DropOrganization(ctx context.Context, orgID uuid.UUID) error
}

// Noop is used when no relationship store is configured.
type Noop struct{}

func (Noop) Grant(context.Context, ...Membership) error       { return nil }
func (Noop) Revoke(context.Context, Membership) error          { return nil }
func (Noop) DropOrganization(context.Context, uuid.UUID) error { return nil }
