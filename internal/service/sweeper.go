package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/permsync"
	"github.com/dangerclosesec/tenantkit/internal/repository"
)

// InvitationExpirer is the part of InvitationService the sweeper drives.
type InvitationExpirer interface {
	ExpireStale(ctx context.Context, actor audit.Actor) (int64, error)
}

// Sweeper periodically expires stale invitations and, when a reconciler is
// attached, re-mirrors organization memberships.
type Sweeper struct {
	invitations InvitationExpirer
	reconciler  *MembershipReconciler
	interval    time.Duration
	logger      *slog.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

func NewSweeper(invitations InvitationExpirer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		invitations: invitations,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// WithReconciler runs r after every sweep.
func (s *Sweeper) WithReconciler(r *MembershipReconciler) *Sweeper {
	s.reconciler = r
	return s
}

// Start begins the periodic sweep
func (s *Sweeper) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		defer close(s.stoppedChan)

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				s.RunOnce(ctx)
				cancel()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop halts the sweep and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.stoppedChan
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) {
	n, err := s.invitations.ExpireStale(ctx, audit.Actor{})
	if err != nil {
		s.logger.ErrorContext(ctx, "invitation sweep failed", "error", err)
	} else if n > 0 {
		s.logger.InfoContext(ctx, "expired stale invitations", "count", n)
	}

	if s.reconciler != nil {
		if _, err := s.reconciler.Reconcile(ctx); err != nil {
			s.logger.ErrorContext(ctx, "membership reconciliation failed", "error", err)
		}
	}
}

// MembershipReconciler writes every stored membership to the relationship
// mirror in batches.
type MembershipReconciler struct {
	orgs      repository.OrganizationRepositoryIface
	mirror    permsync.Mirror
	batchSize int
	dryRun    bool
	logger    *slog.Logger
}

func NewMembershipReconciler(orgs repository.OrganizationRepositoryIface, mirror permsync.Mirror, logger *slog.Logger) *MembershipReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipReconciler{
		orgs:      orgs,
		mirror:    mirror,
		batchSize: 100,
		logger:    logger,
	}
}

// SetBatchSize sets the number of memberships written per call
func (r *MembershipReconciler) SetBatchSize(size int) {
	if size > 0 {
		r.batchSize = size
	}
}

// SetDryRun makes Reconcile count without writing.
func (r *MembershipReconciler) SetDryRun(dryRun bool) {
	r.dryRun = dryRun
}

// Reconcile returns the number of memberships written.
func (r *MembershipReconciler) Reconcile(ctx context.Context) (int, error) {
	members, err := r.orgs.ListAllMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing memberships: %w", err)
	}

	batch := make([]permsync.Membership, 0, r.batchSize)
	written := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if !r.dryRun {
			if err := r.mirror.Grant(ctx, batch...); err != nil {
				return fmt.Errorf("writing memberships: %w", err)
			}
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, m := range members {
		batch = append(batch, permsync.Membership{
			OrganizationID: m.OrganizationID,
			UserID:         m.UserID,
			Role:           string(m.Role),
		})
		if len(batch) == r.batchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}

	r.logger.InfoContext(ctx, "reconciled memberships", "count", written, "dryRun", r.dryRun)
	return written, nil
}
