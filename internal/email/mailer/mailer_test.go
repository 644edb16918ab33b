package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []email.EmailData
}

func (r *recordingSender) SendEmail(_ context.Context, data email.EmailData) error {
	r.sent = append(r.sent, data)
	return nil
}

func TestSendOrganizationInvitation(t *testing.T) {
	sender := &recordingSender{}
	m := New(sender, "https://app.example.com", "Tenantkit")

	err := m.SendOrganizationInvitation(context.Background(), OrganizationInvitation{
		To:               "bob@x.com",
		OrganizationName: "Acme",
		InviterName:      "Alice",
		Role:             "member",
		Token:            "abc_DEF-123",
		ExpiresAt:        time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "bob@x.com", msg.To)
	assert.Equal(t, "organization_invitation", msg.TemplateName)
	assert.Equal(t, "You've been invited to join Acme", msg.Subject)

	data := msg.TemplateData.(invitationTemplateData)
	assert.Equal(t, "https://app.example.com/invitations/abc_DEF-123", data.AcceptLink)
	assert.Equal(t, "March 8, 2026", data.ExpiresAt)
}

func TestSendWelcome(t *testing.T) {
	sender := &recordingSender{}
	m := New(sender, "https://app.example.com", "Tenantkit")

	require.NoError(t, m.SendWelcome(context.Background(), "a@b.c", "Ann"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "account_welcome", sender.sent[0].TemplateName)
	assert.Equal(t, "https://app.example.com/login", sender.sent[0].TemplateData.(welcomeTemplateData).LoginLink)
}
