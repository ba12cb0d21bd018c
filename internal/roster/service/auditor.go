package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"memberbase/internal/roster/models"
	"memberbase/internal/roster/store"
	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
	"memberbase/pkg/platform/sentinel"
)

// Unfixable identifies a ledger hole the auditor cannot repair: the
// preceding subscription carries no identifier snapshot, so the superseded
// value is unknown. No placeholder is written.
type Unfixable struct {
	MemberID       domain.MemberID       `json:"member_id"`
	SubscriptionID domain.SubscriptionID `json:"subscription_id"`
}

// AuditReport summarizes one consistency pass over the roster.
type AuditReport struct {
	MembersChecked    int         `json:"members_checked"`
	AlreadyConsistent int         `json:"already_consistent"`
	Fixed             int         `json:"fixed"`
	EntriesBackfilled int         `json:"entries_backfilled"`
	Unfixable         []Unfixable `json:"unfixable"`
}

// Audit reconciles every member's ledger against their subscriptions. A
// member with N subscriptions is expected to hold at least N-1 ledger
// entries; shortfalls are backfilled from adjacent subscription pairs using
// the predecessor's identifier snapshot and the successor's start date.
//
// Each member is repaired in its own transaction, so one failure never
// blocks progress on the rest. Backfill dedupes on (identifier, day),
// which makes a second pass over a repaired roster write nothing.
func (s *Service) Audit(ctx context.Context) (*AuditReport, error) {
	start := time.Now()

	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}

	var (
		consistent atomic.Int64
		fixed      atomic.Int64
		backfilled atomic.Int64

		mu        sync.Mutex
		unfixable []Unfixable
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.auditConcurrency)
	for _, member := range members {
		g.Go(func() error {
			outcome, err := s.auditMember(groupCtx, member.ID)
			if err != nil {
				return err
			}
			switch {
			case outcome.added == 0 && len(outcome.unfixable) == 0:
				consistent.Add(1)
			case outcome.added > 0:
				fixed.Add(1)
				backfilled.Add(int64(outcome.added))
			}
			if len(outcome.unfixable) > 0 {
				mu.Lock()
				unfixable = append(unfixable, outcome.unfixable...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(unfixable, func(i, j int) bool {
		return unfixable[i].MemberID.String() < unfixable[j].MemberID.String()
	})
	report := &AuditReport{
		MembersChecked:    len(members),
		AlreadyConsistent: int(consistent.Load()),
		Fixed:             int(fixed.Load()),
		EntriesBackfilled: int(backfilled.Load()),
		Unfixable:         unfixable,
	}

	s.logAudit(ctx, "roster_audited",
		"members_checked", report.MembersChecked,
		"fixed", report.Fixed,
		"entries_backfilled", report.EntriesBackfilled,
		"unfixable", len(report.Unfixable))
	if s.metrics != nil {
		s.metrics.RecordAudit(report.EntriesBackfilled, len(report.Unfixable))
		s.metrics.ObserveAudit(start)
	}
	return report, nil
}

type auditOutcome struct {
	added     int
	unfixable []Unfixable
}

func (s *Service) auditMember(ctx context.Context, memberID domain.MemberID) (auditOutcome, error) {
	var outcome auditOutcome

	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		outcome = auditOutcome{}

		subs, err := s.store.ListSubscriptions(txCtx, memberID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscriptions")
		}
		entries, err := s.store.ListHistory(txCtx, memberID, store.OrderAsc)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
		}

		expected := len(subs) - 1
		if expected < 0 {
			expected = 0
		}
		if len(entries) >= expected {
			return nil
		}

		present := make(map[string]struct{}, len(entries))
		for _, entry := range entries {
			present[entry.DedupeKey()] = struct{}{}
		}

		// Each adjacent subscription pair implies one ledger entry: the
		// predecessor's snapshot, superseded when the successor started.
		for i := 1; i < len(subs); i++ {
			predecessor, successor := subs[i-1], subs[i]
			if predecessor.IdentifierSnapshot.IsZero() {
				outcome.unfixable = append(outcome.unfixable, Unfixable{
					MemberID:       memberID,
					SubscriptionID: predecessor.ID,
				})
				continue
			}
			// Identical snapshots mean the identifier did not change
			// between the two periods; the pair implies no ledger entry.
			if predecessor.IdentifierSnapshot == successor.IdentifierSnapshot {
				continue
			}
			key := models.DedupeKey(predecessor.IdentifierSnapshot, successor.StartDate)
			if _, exists := present[key]; exists {
				continue
			}

			entry, err := models.NewHistoryEntry(domain.NewHistoryID(), memberID, predecessor.IdentifierSnapshot, successor.StartDate)
			if err != nil {
				return err
			}
			if err := s.store.AppendHistory(txCtx, entry); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to backfill history entry")
			}
			present[key] = struct{}{}
			outcome.added++
		}
		return nil
	})
	if err != nil {
		// A member deleted mid-audit is progress, not failure.
		if errors.Is(err, sentinel.ErrNotFound) {
			return auditOutcome{}, nil
		}
		return auditOutcome{}, err
	}
	return outcome, nil
}
