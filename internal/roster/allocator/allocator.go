// Package allocator hands out member identifiers from the fixed-width
// numeric namespace. Allocation is forward-only: candidates start one past
// the highest numeric identifier ever observed, so freed identifiers are
// never reissued. Gaps left by deletions stay gaps.
package allocator

import (
	"context"
	"fmt"

	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
)

// IdentifierSource is the allocator's read view of the occupied namespace.
// The roster store satisfies it.
type IdentifierSource interface {
	ListIdentifiers(ctx context.Context) ([]domain.Identifier, error)
}

// Reserver holds short-lived claims on candidate identifiers so concurrent
// allocators (and bulk imports spread across instances) do not hand out the
// same value. A reservation is advisory; the store's unique constraint is
// the final arbiter.
type Reserver interface {
	// Reserve claims the identifier. It returns false when another holder
	// already has it.
	Reserve(ctx context.Context, identifier domain.Identifier) (bool, error)
	// Release drops claims, typically after the winning write has landed
	// or the batch was abandoned.
	Release(ctx context.Context, identifiers ...domain.Identifier) error
}

// Allocator computes the next free identifiers from the current namespace.
type Allocator struct {
	source   IdentifierSource
	reserver Reserver
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithReserver swaps the reservation backend. The default is in-process.
func WithReserver(r Reserver) Option {
	return func(a *Allocator) { a.reserver = r }
}

// New constructs an allocator over the given identifier source.
func New(source IdentifierSource, opts ...Option) *Allocator {
	a := &Allocator{
		source:   source,
		reserver: NewMemoryReserver(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Next reserves and returns the next free identifier.
func (a *Allocator) Next(ctx context.Context) (domain.Identifier, error) {
	batch, err := a.Batch(ctx, 1)
	if err != nil {
		return "", err
	}
	return batch[0], nil
}

// Batch reserves and returns n consecutive-by-allocation identifiers. On
// error, every reservation taken so far is released.
func (a *Allocator) Batch(ctx context.Context, n int) ([]domain.Identifier, error) {
	if n < 1 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "batch size must be at least 1")
	}

	existing, err := a.source.ListIdentifiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identifiers: %w", err)
	}

	occupied := make(map[uint64]struct{}, len(existing))
	var max uint64
	for _, identifier := range existing {
		numeric, ok := identifier.Numeric()
		if !ok {
			// Legacy and manual identifiers live outside the numeric
			// namespace and never constrain allocation.
			continue
		}
		occupied[numeric] = struct{}{}
		if numeric > max {
			max = numeric
		}
	}

	allocated := make([]domain.Identifier, 0, n)
	for candidate := max + 1; len(allocated) < n; candidate++ {
		if candidate > domain.MaxNumericIdentifier {
			_ = a.reserver.Release(ctx, allocated...)
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "identifier namespace exhausted")
		}
		if _, taken := occupied[candidate]; taken {
			continue
		}

		identifier := domain.FormatIdentifier(candidate)
		ok, err := a.reserver.Reserve(ctx, identifier)
		if err != nil {
			_ = a.reserver.Release(ctx, allocated...)
			return nil, fmt.Errorf("reserve identifier %s: %w", identifier, err)
		}
		if !ok {
			// Another allocator got there first; probe past it.
			continue
		}
		allocated = append(allocated, identifier)
	}
	return allocated, nil
}

// Release returns reservations to the pool. Call it after the identifiers
// have been durably claimed or the allocation was abandoned.
func (a *Allocator) Release(ctx context.Context, identifiers ...domain.Identifier) error {
	return a.reserver.Release(ctx, identifiers...)
}
