package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/metrics"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/google/uuid"
)

// Ensure ActivityLogService implements the audit.Logger interface
var _ audit.Logger = (*ActivityLogService)(nil)

// ActivityLogService writes and reads the platform activity log.
type ActivityLogService struct {
	repo    repository.ActivityLogRepositoryIface
	gate    *AdminGate
	metrics *metrics.Metrics
}

func NewActivityLogService(repo repository.ActivityLogRepositoryIface, gate *AdminGate, m *metrics.Metrics) *ActivityLogService {
	return &ActivityLogService{
		repo:    repo,
		gate:    gate,
		metrics: m,
	}
}

// Log appends an entry. Failures are logged and swallowed so the audited
// action still succeeds.
func (s *ActivityLogService) Log(ctx context.Context, actor audit.Actor, entry audit.Entry) {
	log := &model.ActivityLog{
		UserID:       actor.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Metadata:     model.JSONMap(audit.Sanitize(entry.Metadata)),
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
		RequestID:    actor.RequestID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, log); err != nil {
		slog.WarnContext(ctx, "failed to write activity log",
			"action", entry.Action,
			"resourceType", entry.ResourceType,
			"resourceID", entry.ResourceID,
			"requestID", actor.RequestID,
			"error", err)
		s.metrics.AuditFailure()
	}
}

// ActivityLogListInput holds the filters accepted by List and Export.
type ActivityLogListInput struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Search       string
	From         time.Time
	To           time.Time
	Page         repository.Page
}

func (in ActivityLogListInput) query() repository.ActivityLogQuery {
	return repository.ActivityLogQuery{
		UserID:       in.UserID,
		Action:       in.Action,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		Search:       in.Search,
		From:         in.From,
		To:           in.To,
		Page:         in.Page.Normalize(),
	}
}

func (s *ActivityLogService) List(ctx context.Context, caller Caller, in ActivityLogListInput) (Page[*model.ActivityLog], error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewActivityLogs); err != nil {
		return Page[*model.ActivityLog]{}, err
	}

	q := in.query()
	logs, total, err := s.repo.Query(ctx, q)
	if err != nil {
		return Page[*model.ActivityLog]{}, fmt.Errorf("querying activity logs: %w", err)
	}
	return newPage(logs, total, q.Page), nil
}

func (s *ActivityLogService) Get(ctx context.Context, caller Caller, id uuid.UUID) (*model.ActivityLog, error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewActivityLogs); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

// ActivitySummary counts entries per action since a point in time.
type ActivitySummary struct {
	Since  time.Time           `json:"since"`
	Total  int64               `json:"total"`
	Counts []model.ActionCount `json:"counts"`
}

func (s *ActivityLogService) Summary(ctx context.Context, caller Caller, since time.Time) (*ActivitySummary, error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewActivityLogs); err != nil {
		return nil, err
	}

	counts, err := s.repo.CountByAction(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("counting activity: %w", err)
	}

	summary := &ActivitySummary{Since: since, Counts: counts}
	if summary.Counts == nil {
		summary.Counts = []model.ActionCount{}
	}
	for _, c := range counts {
		summary.Total += c.Count
	}
	return summary, nil
}

// Export returns every entry matching in, up to the export row cap.
func (s *ActivityLogService) Export(ctx context.Context, caller Caller, in ActivityLogListInput) ([]*model.ActivityLog, error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewActivityLogs, permission.ExportData); err != nil {
		return nil, err
	}

	q := in.query()
	logs, err := collectAll(func(p repository.Page) ([]*model.ActivityLog, int64, error) {
		q.Page = p
		return s.repo.Query(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("exporting activity logs: %w", err)
	}

	s.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionActivityLogExport,
		ResourceType: model.ResourceActivityLog,
		Metadata:     map[string]interface{}{"count": len(logs)},
	})
	return logs, nil
}
