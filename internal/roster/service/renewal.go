package service

import (
	"context"
	"errors"
	"time"

	"memberbase/internal/roster/models"
	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
	"memberbase/pkg/platform/sentinel"
	"memberbase/pkg/requestcontext"
)

// RenewInput carries a renewal request. StartDate defaults to now; a
// back-dated start may produce a subscription that is born expired.
// NewIdentifier is optional; when nil the allocator assigns the next free
// identifier.
type RenewInput struct {
	MemberID       domain.MemberID
	StartDate      time.Time
	DurationMonths int
	NewIdentifier  *domain.Identifier
}

// Renew performs the renewal transition in one transaction: the superseded
// identifier is appended to the ledger, the member's identifier is
// overwritten, and a new subscription is inserted snapshotting the
// post-change value. After N rotating renewals a member has N+1
// subscriptions and N ledger entries. Renewing with the member's current
// identifier is valid and adds only the subscription; no ledger entry is
// written for a change that did not happen.
func (s *Service) Renew(ctx context.Context, input RenewInput) (*models.Subscription, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = now
	}

	next, allocated, err := s.renewalIdentifier(ctx, input.MemberID, input.NewIdentifier)
	if err != nil {
		return nil, err
	}

	var (
		sub        *models.Subscription
		superseded domain.Identifier
		changed    bool
	)
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		member, err := s.store.FindMember(txCtx, input.MemberID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "member not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
		}
		superseded = member.Identifier
		changed = next != member.Identifier

		if changed {
			// The ledger entry carries the change date of the subscription
			// that superseded it; the auditor's backfill derives the same key.
			entry, err := models.NewHistoryEntry(domain.NewHistoryID(), member.ID, member.Identifier, startDate)
			if err != nil {
				return asValidation(err)
			}
			if err := s.store.AppendHistory(txCtx, entry); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append history entry")
			}

			if err := s.store.UpdateMemberIdentifier(txCtx, member.ID, next, now); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					return dErrors.New(dErrors.CodeConflict, "identifier already assigned")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update member identifier")
			}
		}

		sub, err = models.NewSubscription(domain.NewSubscriptionID(), member.ID, startDate, input.DurationMonths, next, now)
		if err != nil {
			return asValidation(err)
		}
		if err := s.store.CreateSubscription(txCtx, sub); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create subscription")
		}
		return nil
	})
	if allocated {
		_ = s.allocator.Release(ctx, next)
	}
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "member_renewed",
		"member_id", input.MemberID,
		"superseded_identifier", superseded,
		"identifier", next,
		"identifier_changed", changed,
		"subscription_id", sub.ID)
	if s.metrics != nil {
		s.metrics.IncrementRenewal(changed)
		s.metrics.ObserveRenew(start)
	}
	return sub, nil
}

// renewalIdentifier resolves the identifier the renewal rotates to: the
// caller's explicit choice, pre-checked for collisions, or a fresh
// allocation. An explicit value held by the renewing member itself is not a
// collision; the renewal simply keeps it. The store's unique constraint
// remains the final arbiter.
func (s *Service) renewalIdentifier(ctx context.Context, memberID domain.MemberID, explicit *domain.Identifier) (domain.Identifier, bool, error) {
	if explicit == nil {
		next, err := s.allocator.Next(ctx)
		if err != nil {
			return "", false, err
		}
		return next, true, nil
	}

	identifier := *explicit
	if identifier.IsZero() {
		return "", false, dErrors.New(dErrors.CodeValidation, "identifier cannot be empty")
	}
	holder, err := s.store.FindMemberByIdentifier(ctx, identifier)
	switch {
	case err == nil && holder.ID != memberID:
		return "", false, dErrors.New(dErrors.CodeConflict, "identifier already assigned")
	case err == nil:
		return identifier, false, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return identifier, false, nil
	default:
		return "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check identifier availability")
	}
}
