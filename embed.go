// Package tenantkit holds the assets compiled into the tenantkit binaries.
package tenantkit

import "embed"

// EmailFS contains the html/plaintext template pairs under templates/emails.
//
//go:embed templates/emails
var EmailFS embed.FS

// MigrationsFS contains the ordered SQL migrations under migrations.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
