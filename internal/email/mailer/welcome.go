package mailer

import (
	"context"

	"github.com/dangerclosesec/tenantkit/internal/email"
)

type welcomeTemplateData struct {
	FirstName string
	LoginLink string
}

// SendWelcome greets a newly registered account.
func (m *Mailer) SendWelcome(ctx context.Context, to, firstName string) error {
	return m.sender.SendEmail(ctx, email.EmailData{
		To:           to,
		FromName:     m.fromName,
		Subject:      "Welcome to " + m.fromName,
		TemplateName: "account_welcome",
		TemplateData: welcomeTemplateData{
			FirstName: firstName,
			LoginLink: m.baseURL + "/login",
		},
	})
}
