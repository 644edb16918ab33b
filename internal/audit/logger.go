package audit

import (
	"context"

	"github.com/google/uuid"
)

// Actor identifies who performed an audited action and from where.
type Actor struct {
	UserID    *uuid.UUID
	IPAddress string
	UserAgent string
	RequestID string
}

// Entry describes one audited action.
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]interface{}
}

// Logger records audited actions. Implementations never fail the caller.
type Logger interface {
	Log(ctx context.Context, actor Actor, entry Entry)
}

// NoOpLogger is a logger that does nothing
type NoOpLogger struct{}

// Log implements Logger.Log
func (NoOpLogger) Log(context.Context, Actor, Entry) {}
