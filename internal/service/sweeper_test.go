package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/mocks"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/permsync"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type countingExpirer struct {
	calls atomic.Int32
}

func (c *countingExpirer) ExpireStale(context.Context, audit.Actor) (int64, error) {
	c.calls.Add(1)
	return 1, nil
}

type batchMirror struct {
	permsync.Noop
	batches [][]permsync.Membership
}

func (b *batchMirror) Grant(_ context.Context, members ...permsync.Membership) error {
	b.batches = append(b.batches, append([]permsync.Membership(nil), members...))
	return nil
}

func TestSweeperRunsUntilStopped(t *testing.T) {
	exp := &countingExpirer{}
	s := service.NewSweeper(exp, 10*time.Millisecond, nil)
	s.Start()

	assert.Eventually(t, func() bool { return exp.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := exp.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, exp.calls.Load())
}

func TestMembershipReconciler(t *testing.T) {
	ctrl := gomock.NewController(t)
	orgs := mocks.NewMockOrganizationRepositoryIface(ctrl)

	members := make([]*model.OrganizationMember, 5)
	for i := range members {
		members[i] = &model.OrganizationMember{OrganizationID: uuid.New(), UserID: uuid.New(), Role: permission.OrgRoleMember}
	}
	orgs.EXPECT().ListAllMembers(gomock.Any()).Return(members, nil).Times(2)

	mirror := &batchMirror{}
	r := service.NewMembershipReconciler(orgs, mirror, nil)
	r.SetBatchSize(2)

	n, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, mirror.batches, 3)
	assert.Len(t, mirror.batches[2], 1)
	assert.Equal(t, "member", mirror.batches[0][0].Role)

	r.SetDryRun(true)
	n, err = r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, mirror.batches, 3)
}
