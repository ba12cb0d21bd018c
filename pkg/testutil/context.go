package testutil

import (
	"context"
	"testing"
	"time"

	"memberbase/pkg/requestcontext"
)

// Context returns a background context bound to the test lifetime.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// ContextAt returns a test context with a frozen request clock, so service
// operations stamp rows with a deterministic time.
func ContextAt(t *testing.T, at time.Time) context.Context {
	t.Helper()
	return requestcontext.WithTime(Context(t), at)
}
