package allocator

import (
	"context"
	"sync"
	"time"

	"memberbase/pkg/domain"
)

// DefaultReservationTTL bounds how long an unconfirmed claim blocks a
// candidate before the namespace self-heals.
const DefaultReservationTTL = 15 * time.Minute

// MemoryReserver is the in-process reservation backend. Suitable for a
// single instance; multi-instance deployments use the Redis backend.
type MemoryReserver struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[domain.Identifier]time.Time
}

// NewMemoryReserver constructs an in-process reserver. A non-positive ttl
// falls back to DefaultReservationTTL.
func NewMemoryReserver(ttl time.Duration) *MemoryReserver {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &MemoryReserver{
		ttl:    ttl,
		claims: make(map[domain.Identifier]time.Time),
	}
}

var _ Reserver = (*MemoryReserver)(nil)

func (r *MemoryReserver) Reserve(ctx context.Context, identifier domain.Identifier) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if expiry, held := r.claims[identifier]; held && expiry.After(now) {
		return false, nil
	}
	r.claims[identifier] = now.Add(r.ttl)
	return true, nil
}

func (r *MemoryReserver) Release(ctx context.Context, identifiers ...domain.Identifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, identifier := range identifiers {
		delete(r.claims, identifier)
	}
	return nil
}
