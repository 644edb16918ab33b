// internal/email/mailer/organization_invitation.go
package mailer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/email"
)

// OrganizationInvitation is the data rendered into the invitation email.
type OrganizationInvitation struct {
	To               string
	OrganizationName string
	InviterName      string
	Role             string
	Token            string
	ExpiresAt        time.Time
}

type invitationTemplateData struct {
	OrganizationName string
	InviterName      string
	Role             string
	AcceptLink       string
	ExpiresAt        string
}

// Mailer sends the application's transactional email.
type Mailer struct {
	sender   email.Sender
	baseURL  string
	fromName string
}

func New(sender email.Sender, baseURL, fromName string) *Mailer {
	return &Mailer{sender: sender, baseURL: baseURL, fromName: fromName}
}

// AcceptLink is the frontend URL that redeems token.
func (m *Mailer) AcceptLink(token string) string {
	return fmt.Sprintf("%s/invitations/%s", m.baseURL, url.PathEscape(token))
}

// SendOrganizationInvitation mails the accept link for an invitation.
func (m *Mailer) SendOrganizationInvitation(ctx context.Context, inv OrganizationInvitation) error {
	data := invitationTemplateData{
		OrganizationName: inv.OrganizationName,
		InviterName:      inv.InviterName,
		Role:             inv.Role,
		AcceptLink:       m.AcceptLink(inv.Token),
		ExpiresAt:        inv.ExpiresAt.UTC().Format("January 2, 2006"),
	}

	return m.sender.SendEmail(ctx, email.EmailData{
		To:           inv.To,
		FromName:     m.fromName,
		Subject:      fmt.Sprintf("You've been invited to join %s", inv.OrganizationName),
		TemplateName: "organization_invitation",
		TemplateData: data,
	})
}
