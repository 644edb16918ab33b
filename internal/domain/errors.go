// internal/domain/errors.go
package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// General errors
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotConfigured = errors.New("server configuration error")
	ErrRateLimited   = errors.New("too many requests")

	// Authentication and authorization errors
	ErrUnauthenticated         = errors.New("authentication required")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrAdminRequired           = errors.New("admin required")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrAccountDisabled         = errors.New("account disabled")
	ErrForbidden               = errors.New("forbidden")
	ErrRegistrationClosed      = errors.New("registration is disabled")

	// User-related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrPasswordTooWeak    = errors.New("password too weak")
	ErrSelfModification   = errors.New("cannot modify your own account this way")

	// Organization-related errors
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrSlugTaken            = errors.New("slug already taken")
	ErrMemberNotFound       = errors.New("member not found")
	ErrAlreadyMember        = errors.New("already a member of this organization")
	ErrOrganizationFull     = errors.New("organization has reached its member limit")
	ErrSoleOwner            = errors.New("organization must keep at least one owner")
	ErrInvalidOrgRole       = errors.New("invalid organization role")
	ErrOrganizationLimit    = errors.New("organization limit reached for this account")

	// Invitation-related errors
	ErrInvitationNotFound = errors.New("invitation not found or no longer valid")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationExists   = errors.New("a pending invitation already exists for this email")
	ErrEmailMismatch      = errors.New("invitation was sent to a different email address")
	ErrCannotInviteOwner  = errors.New("cannot invite with owner role")

	// Activity log errors
	ErrActivityLogNotFound = errors.New("activity log not found")

	// Onboarding errors
	ErrAlreadyBootstrapped = errors.New("system already has a super admin")
	ErrInvalidSetupToken   = errors.New("invalid setup token")
)

// ValidationError carries field-level messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidInput.Error()
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
