package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/metrics"
	"github.com/dangerclosesec/tenantkit/internal/mocks"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestActivityLogLog(t *testing.T) {
	ctx := context.Background()
	actorID := uuid.New()
	actor := audit.Actor{UserID: &actorID, IPAddress: "203.0.113.7", UserAgent: "ua", RequestID: "req-9"}

	t.Run("sanitizes metadata", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockActivityLogRepositoryIface(ctrl)
		svc := service.NewActivityLogService(repo, service.NewAdminGate(mocks.NewMockUserRepositoryIface(ctrl)), nil)

		repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, l *model.ActivityLog) error {
			assert.Equal(t, model.ActionUserUpdate, l.Action)
			assert.Equal(t, "req-9", l.RequestID)
			assert.Equal(t, &actorID, l.UserID)
			assert.Equal(t, "x@y.com", l.Metadata["email"])
			assert.NotContains(t, l.Metadata, "password")
			assert.NotContains(t, l.Metadata, "apiKey")
			return nil
		})

		svc.Log(ctx, actor, audit.Entry{
			Action:       model.ActionUserUpdate,
			ResourceType: model.ResourceUser,
			Metadata: map[string]interface{}{
				"email":    "x@y.com",
				"password": "hunter2",
				"apiKey":   "k",
			},
		})
	})

	t.Run("insert failure is swallowed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockActivityLogRepositoryIface(ctrl)
		m := metrics.NewMetrics(prometheus.NewRegistry())
		svc := service.NewActivityLogService(repo, service.NewAdminGate(mocks.NewMockUserRepositoryIface(ctrl)), m)

		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

		assert.NotPanics(t, func() {
			svc.Log(ctx, actor, audit.Entry{Action: model.ActionOrgCreate})
		})
		assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailuresTotal))
	})
}

func TestActivityLogQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("list needs view_activity_logs", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockActivityLogRepositoryIface(ctrl)
		users := mocks.NewMockUserRepositoryIface(ctrl)
		svc := service.NewActivityLogService(repo, service.NewAdminGate(users), nil)
		u := newUser("u@x.com", permission.RoleUser)
		users.EXPECT().FindByID(gomock.Any(), u.ID).Return(u, nil)

		_, err := svc.List(ctx, callerFor(u), service.ActivityLogListInput{})
		assert.ErrorIs(t, err, domain.ErrAdminRequired)
	})

	t.Run("summary totals", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockActivityLogRepositoryIface(ctrl)
		users := mocks.NewMockUserRepositoryIface(ctrl)
		svc := service.NewActivityLogService(repo, service.NewAdminGate(users), nil)
		mod := newUser("mod@x.com", permission.RoleModerator)
		since := time.Now().Add(-24 * time.Hour)

		users.EXPECT().FindByID(gomock.Any(), mod.ID).Return(mod, nil)
		repo.EXPECT().CountByAction(gomock.Any(), since).Return([]model.ActionCount{
			{Action: model.ActionOrgCreate, Count: 2},
			{Action: model.ActionInvitationAccept, Count: 5},
		}, nil)

		summary, err := svc.Summary(ctx, callerFor(mod), since)
		require.NoError(t, err)
		assert.Equal(t, int64(7), summary.Total)
	})

	t.Run("export walks every page", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockActivityLogRepositoryIface(ctrl)
		users := mocks.NewMockUserRepositoryIface(ctrl)
		svc := service.NewActivityLogService(repo, service.NewAdminGate(users), nil)
		admin := newUser("admin@x.com", permission.RoleAdmin)

		users.EXPECT().FindByID(gomock.Any(), admin.ID).Return(admin, nil)
		first := make([]*model.ActivityLog, repository.MaxPageSize)
		for i := range first {
			first[i] = &model.ActivityLog{ID: uuid.New()}
		}
		gomock.InOrder(
			repo.EXPECT().Query(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, q repository.ActivityLogQuery) ([]*model.ActivityLog, int64, error) {
				assert.Equal(t, 1, q.Page.Page)
				assert.Equal(t, model.ActionOrgCreate, q.Action)
				return first, 101, nil
			}),
			repo.EXPECT().Query(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, q repository.ActivityLogQuery) ([]*model.ActivityLog, int64, error) {
				assert.Equal(t, 2, q.Page.Page)
				return []*model.ActivityLog{{ID: uuid.New()}}, 101, nil
			}),
		)
		// The export itself is audited.
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		logs, err := svc.Export(ctx, callerFor(admin), service.ActivityLogListInput{Action: model.ActionOrgCreate})
		require.NoError(t, err)
		assert.Len(t, logs, 101)
	})
}
