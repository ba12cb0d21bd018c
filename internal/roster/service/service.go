// Package service orchestrates the member identifier lifecycle: signup and
// deletion, renewal transitions, the consistency audit, and the guarded
// corrective ledger operations. All multi-row mutations run inside store
// transactions; the store's identifier uniqueness constraint is the
// serialization point for concurrent writers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"memberbase/internal/roster/allocator"
	"memberbase/internal/roster/gaps"
	"memberbase/internal/roster/metrics"
	"memberbase/internal/roster/models"
	"memberbase/internal/roster/store"
	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
	"memberbase/pkg/platform/sentinel"
	"memberbase/pkg/requestcontext"
)

// defaultAuditConcurrency bounds parallel per-member audit transactions.
const defaultAuditConcurrency = 4

// Service owns the roster's write paths and reports.
type Service struct {
	store            store.Store
	allocator        *allocator.Allocator
	logger           *slog.Logger
	metrics          *metrics.Metrics
	auditConcurrency int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditConcurrency caps how many members the auditor repairs in
// parallel. Values below 1 keep the default.
func WithAuditConcurrency(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.auditConcurrency = n
		}
	}
}

// New constructs a Service.
func New(st store.Store, alloc *allocator.Allocator, opts ...Option) *Service {
	s := &Service{
		store:            st,
		allocator:        alloc,
		auditConcurrency: defaultAuditConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateMemberInput carries a signup request. Identifier is optional; when
// empty the allocator assigns the next free one. StartDate defaults to now.
type CreateMemberInput struct {
	FullName       string
	Identifier     domain.Identifier
	StartDate      time.Time
	DurationMonths int
}

// MemberDetails is a member with its subscriptions, statuses fresh as of
// the read.
type MemberDetails struct {
	Member        *models.Member         `json:"member"`
	Subscriptions []*models.Subscription `json:"subscriptions"`
}

// CreateMember signs up a member: the member row and its first subscription
// land in one transaction. The first subscription snapshots the initial
// identifier; the ledger stays empty until the first renewal.
func (s *Service) CreateMember(ctx context.Context, input CreateMemberInput) (*models.Member, error) {
	now := requestcontext.Now(ctx)
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = now
	}

	identifier := input.Identifier
	allocated := false
	if identifier.IsZero() {
		next, err := s.allocator.Next(ctx)
		if err != nil {
			return nil, err
		}
		identifier = next
		allocated = true
	}

	member, err := models.NewMember(domain.NewMemberID(), identifier, input.FullName, now)
	if err != nil {
		return nil, asValidation(err)
	}
	sub, err := models.NewSubscription(domain.NewSubscriptionID(), member.ID, startDate, input.DurationMonths, identifier, now)
	if err != nil {
		return nil, asValidation(err)
	}

	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateMember(txCtx, member); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "identifier already assigned")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create member")
		}
		if err := s.store.CreateSubscription(txCtx, sub); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create first subscription")
		}
		return nil
	})
	if allocated {
		_ = s.allocator.Release(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "member_created",
		"member_id", member.ID,
		"identifier", member.Identifier)
	if s.metrics != nil {
		s.metrics.IncrementMemberCreated()
	}
	return member, nil
}

// GetMember returns a member with its subscriptions. The lazy expiry sweep
// runs first so statuses reflect the current time.
func (s *Service) GetMember(ctx context.Context, id domain.MemberID) (*MemberDetails, error) {
	if err := s.sweepExpired(ctx); err != nil {
		return nil, err
	}

	member, err := s.store.FindMember(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "member not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
	}
	subs, err := s.store.ListSubscriptions(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscriptions")
	}
	return &MemberDetails{Member: member, Subscriptions: subs}, nil
}

// ListMembers returns all members ordered by creation time.
func (s *Service) ListMembers(ctx context.Context) ([]*models.Member, error) {
	if err := s.sweepExpired(ctx); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}
	return members, nil
}

// DeleteMember removes a member with its subscriptions and ledger. The
// identifier is never reissued; its gap shows up in the gap report.
func (s *Service) DeleteMember(ctx context.Context, id domain.MemberID) error {
	if err := s.store.DeleteMember(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "member not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete member")
	}

	s.logAudit(ctx, "member_deleted", "member_id", id)
	if s.metrics != nil {
		s.metrics.IncrementMemberDeleted()
	}
	return nil
}

// History lists a member's identifier ledger, oldest first.
func (s *Service) History(ctx context.Context, id domain.MemberID) ([]*models.HistoryEntry, error) {
	if _, err := s.store.FindMember(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "member not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
	}
	entries, err := s.store.ListHistory(ctx, id, store.OrderAsc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
	}
	return entries, nil
}

// GapReport analyzes the numeric identifier namespace for holes.
func (s *Service) GapReport(ctx context.Context) (gaps.Report, error) {
	identifiers, err := s.store.ListIdentifiers(ctx)
	if err != nil {
		return gaps.Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list identifiers")
	}
	return gaps.Analyze(identifiers), nil
}

func (s *Service) sweepExpired(ctx context.Context) error {
	flipped, err := s.store.MarkSubscriptionsExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep expired subscriptions")
	}
	if flipped > 0 {
		s.logAudit(ctx, "subscriptions_expired", "count", flipped)
	}
	return nil
}

// asValidation surfaces constructor invariant failures as validation errors.
func asValidation(err error) error {
	if de, ok := dErrors.Is(err); ok && de.Code() == dErrors.CodeInvariantViolation {
		return dErrors.New(dErrors.CodeValidation, de.Message())
	}
	return err
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
