package service

import (
	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/auth"
	"github.com/google/uuid"
)

// Caller describes who is making a request. Handlers build one per request
// and pass it explicitly into every service call.
type Caller struct {
	Identity *auth.Identity
	// ActiveOrgID is the organization selected by the client, if any.
	ActiveOrgID *uuid.UUID
	IPAddress   string
	UserAgent   string
	RequestID   string
}

func (c Caller) Authenticated() bool {
	return c.Identity != nil && c.Identity.UserID != uuid.Nil
}

// UserID returns uuid.Nil for anonymous callers.
func (c Caller) UserID() uuid.UUID {
	if c.Identity == nil {
		return uuid.Nil
	}
	return c.Identity.UserID
}

// Actor converts the caller into audit attribution.
func (c Caller) Actor() audit.Actor {
	a := audit.Actor{
		IPAddress: c.IPAddress,
		UserAgent: c.UserAgent,
		RequestID: c.RequestID,
	}
	if c.Authenticated() {
		id := c.Identity.UserID
		a.UserID = &id
	}
	return a
}

// withUser returns a copy of the caller attributed to userID. Used right
// after sign-in or bootstrap, before the client holds a token.
func (c Caller) withUser(userID uuid.UUID, email, role string) Caller {
	c.Identity = &auth.Identity{UserID: userID, Email: email, Role: role}
	return c
}
