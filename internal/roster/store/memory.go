package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"memberbase/internal/roster/models"
	"memberbase/pkg/domain"
	"memberbase/pkg/platform/sentinel"
)

type memoryTxKey struct{}

// InMemory is the reference store implementation. A single mutex serializes
// transactions; RunInTx snapshots all state on entry and restores it when fn
// fails, so memory transactions are atomic the same way SQL ones are.
// Rows are copied on the way in and out so callers never alias store state.
type InMemory struct {
	mu sync.Mutex

	members       map[domain.MemberID]*models.Member
	byIdentifier  map[domain.Identifier]domain.MemberID
	subscriptions map[domain.MemberID][]*models.Subscription
	history       map[domain.MemberID][]*models.HistoryEntry
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		members:       make(map[domain.MemberID]*models.Member),
		byIdentifier:  make(map[domain.Identifier]domain.MemberID),
		subscriptions: make(map[domain.MemberID][]*models.Subscription),
		history:       make(map[domain.MemberID][]*models.HistoryEntry),
	}
}

var _ Store = (*InMemory)(nil)

// lock acquires the store mutex unless the context already holds the
// transaction, in which case RunInTx owns it for the whole unit.
func (s *InMemory) lock(ctx context.Context) (unlock func()) {
	if ctx.Value(memoryTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTx executes fn under the store mutex with snapshot rollback.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		// Already transactional; join the enclosing unit.
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memoryTxKey{}, struct{}{})); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	members       map[domain.MemberID]*models.Member
	byIdentifier  map[domain.Identifier]domain.MemberID
	subscriptions map[domain.MemberID][]*models.Subscription
	history       map[domain.MemberID][]*models.HistoryEntry
}

func (s *InMemory) snapshot() memorySnapshot {
	snap := memorySnapshot{
		members:       make(map[domain.MemberID]*models.Member, len(s.members)),
		byIdentifier:  make(map[domain.Identifier]domain.MemberID, len(s.byIdentifier)),
		subscriptions: make(map[domain.MemberID][]*models.Subscription, len(s.subscriptions)),
		history:       make(map[domain.MemberID][]*models.HistoryEntry, len(s.history)),
	}
	for id, m := range s.members {
		snap.members[id] = copyMember(m)
	}
	for identifier, id := range s.byIdentifier {
		snap.byIdentifier[identifier] = id
	}
	for id, subs := range s.subscriptions {
		snap.subscriptions[id] = copySubscriptions(subs)
	}
	for id, entries := range s.history {
		snap.history[id] = copyHistory(entries)
	}
	return snap
}

func (s *InMemory) restore(snap memorySnapshot) {
	s.members = snap.members
	s.byIdentifier = snap.byIdentifier
	s.subscriptions = snap.subscriptions
	s.history = snap.history
}

// -----------------------------------------------------------------------------
// Members
// -----------------------------------------------------------------------------

func (s *InMemory) CreateMember(ctx context.Context, member *models.Member) error {
	defer s.lock(ctx)()

	if _, exists := s.members[member.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, taken := s.byIdentifier[member.Identifier]; taken {
		return sentinel.ErrConflict
	}
	s.members[member.ID] = copyMember(member)
	s.byIdentifier[member.Identifier] = member.ID
	return nil
}

func (s *InMemory) FindMember(ctx context.Context, id domain.MemberID) (*models.Member, error) {
	defer s.lock(ctx)()

	member, ok := s.members[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyMember(member), nil
}

func (s *InMemory) FindMemberByIdentifier(ctx context.Context, identifier domain.Identifier) (*models.Member, error) {
	defer s.lock(ctx)()

	id, ok := s.byIdentifier[identifier]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyMember(s.members[id]), nil
}

func (s *InMemory) ListMembers(ctx context.Context) ([]*models.Member, error) {
	defer s.lock(ctx)()

	members := make([]*models.Member, 0, len(s.members))
	for _, m := range s.members {
		members = append(members, copyMember(m))
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

func (s *InMemory) UpdateMemberIdentifier(ctx context.Context, id domain.MemberID, identifier domain.Identifier, now time.Time) error {
	defer s.lock(ctx)()

	member, ok := s.members[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if holder, taken := s.byIdentifier[identifier]; taken && holder != id {
		return sentinel.ErrConflict
	}
	delete(s.byIdentifier, member.Identifier)
	member.Identifier = identifier
	member.UpdatedAt = now
	s.byIdentifier[identifier] = id
	return nil
}

func (s *InMemory) DeleteMember(ctx context.Context, id domain.MemberID) error {
	defer s.lock(ctx)()

	member, ok := s.members[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byIdentifier, member.Identifier)
	delete(s.members, id)
	delete(s.subscriptions, id)
	delete(s.history, id)
	return nil
}

func (s *InMemory) ListIdentifiers(ctx context.Context) ([]domain.Identifier, error) {
	defer s.lock(ctx)()

	identifiers := make([]domain.Identifier, 0, len(s.byIdentifier))
	for identifier := range s.byIdentifier {
		identifiers = append(identifiers, identifier)
	}
	sort.Slice(identifiers, func(i, j int) bool { return identifiers[i] < identifiers[j] })
	return identifiers, nil
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

func (s *InMemory) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	defer s.lock(ctx)()

	if _, ok := s.members[sub.MemberID]; !ok {
		return sentinel.ErrNotFound
	}
	s.subscriptions[sub.MemberID] = append(s.subscriptions[sub.MemberID], copySubscription(sub))
	return nil
}

func (s *InMemory) ListSubscriptions(ctx context.Context, memberID domain.MemberID) ([]*models.Subscription, error) {
	defer s.lock(ctx)()

	subs := copySubscriptions(s.subscriptions[memberID])
	sort.Slice(subs, func(i, j int) bool { return subs[i].StartDate.Before(subs[j].StartDate) })
	return subs, nil
}

func (s *InMemory) MarkSubscriptionsExpired(ctx context.Context, now time.Time) (int64, error) {
	defer s.lock(ctx)()

	var flipped int64
	for _, subs := range s.subscriptions {
		for _, sub := range subs {
			if sub.Status == models.SubscriptionActive && !sub.EndDate.After(now) {
				sub.Status = models.SubscriptionExpired
				flipped++
			}
		}
	}
	return flipped, nil
}

func (s *InMemory) DeleteSubscriptionsSince(ctx context.Context, memberID domain.MemberID, cutoff time.Time) (int64, error) {
	defer s.lock(ctx)()

	kept := s.subscriptions[memberID][:0]
	var removed int64
	for _, sub := range s.subscriptions[memberID] {
		if sub.CreatedAt.Before(cutoff) {
			kept = append(kept, sub)
		} else {
			removed++
		}
	}
	s.subscriptions[memberID] = kept
	return removed, nil
}

// -----------------------------------------------------------------------------
// Identifier history ledger
// -----------------------------------------------------------------------------

func (s *InMemory) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	defer s.lock(ctx)()

	if _, ok := s.members[entry.MemberID]; !ok {
		return sentinel.ErrNotFound
	}
	s.history[entry.MemberID] = append(s.history[entry.MemberID], copyHistoryEntry(entry))
	return nil
}

func (s *InMemory) ListHistory(ctx context.Context, memberID domain.MemberID, order Order) ([]*models.HistoryEntry, error) {
	defer s.lock(ctx)()

	entries := copyHistory(s.history[memberID])
	sort.Slice(entries, func(i, j int) bool {
		if order == OrderDesc {
			return entries[i].ChangedAt.After(entries[j].ChangedAt)
		}
		return entries[i].ChangedAt.Before(entries[j].ChangedAt)
	})
	return entries, nil
}

func (s *InMemory) LatestHistory(ctx context.Context, memberID domain.MemberID) (*models.HistoryEntry, error) {
	entries, err := s.ListHistory(ctx, memberID, OrderDesc)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return entries[0], nil
}

func (s *InMemory) DeleteHistoryEntry(ctx context.Context, id domain.HistoryID) error {
	defer s.lock(ctx)()

	for memberID, entries := range s.history {
		for i, entry := range entries {
			if entry.ID == id {
				s.history[memberID] = append(entries[:i], entries[i+1:]...)
				return nil
			}
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) UpdateHistoryIdentifier(ctx context.Context, id domain.HistoryID, identifier domain.Identifier) error {
	defer s.lock(ctx)()

	for _, entries := range s.history {
		for _, entry := range entries {
			if entry.ID == id {
				entry.Identifier = identifier
				return nil
			}
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) DeleteHistorySince(ctx context.Context, memberID domain.MemberID, cutoff time.Time) (int64, error) {
	defer s.lock(ctx)()

	kept := s.history[memberID][:0]
	var removed int64
	for _, entry := range s.history[memberID] {
		if entry.ChangedAt.Before(cutoff) {
			kept = append(kept, entry)
		} else {
			removed++
		}
	}
	s.history[memberID] = kept
	return removed, nil
}

// -----------------------------------------------------------------------------
// Copy helpers
// -----------------------------------------------------------------------------

func copyMember(m *models.Member) *models.Member {
	cp := *m
	return &cp
}

func copySubscription(s *models.Subscription) *models.Subscription {
	cp := *s
	return &cp
}

func copySubscriptions(subs []*models.Subscription) []*models.Subscription {
	out := make([]*models.Subscription, len(subs))
	for i, sub := range subs {
		out[i] = copySubscription(sub)
	}
	return out
}

func copyHistoryEntry(h *models.HistoryEntry) *models.HistoryEntry {
	cp := *h
	return &cp
}

func copyHistory(entries []*models.HistoryEntry) []*models.HistoryEntry {
	out := make([]*models.HistoryEntry, len(entries))
	for i, entry := range entries {
		out[i] = copyHistoryEntry(entry)
	}
	return out
}
