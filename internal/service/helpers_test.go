package service_test

import (
	"context"
	"sync"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/auth"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/google/uuid"
)

func newUser(email string, role permission.Role) *model.User {
	return &model.User{
		ID:       uuid.New(),
		Email:    email,
		Role:     role,
		IsActive: true,
	}
}

func callerFor(u *model.User) service.Caller {
	return service.Caller{
		Identity:  &auth.Identity{UserID: u.ID, Email: u.Email, Role: string(u.Role)},
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
		RequestID: "req-1",
	}
}

// fastHasher keeps argon2 cheap in tests.
func fastHasher() *auth.PasswordHasher {
	return auth.NewPasswordHasherWithConfig(auth.PasswordConfig{
		Time:    1,
		Memory:  1024,
		Threads: 1,
		KeyLen:  16,
		SaltLen: 8,
	})
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	actors  []audit.Actor
}

func (r *recordingAudit) Log(_ context.Context, actor audit.Actor, entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	r.actors = append(r.actors, actor)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
