package tx

import (
	"context"
	"sync"
)

type hooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

// WithCommitHooks is called by Manager implementations when an outermost
// transaction begins. The returned run func must be called after a successful
// commit with a context that no longer carries the transaction.
func WithCommitHooks(ctx context.Context) (context.Context, func(ctx context.Context)) {
	h := &commitHooks{}
	run := func(ctx context.Context) {
		h.mu.Lock()
		fns := h.fns
		h.fns = nil
		h.mu.Unlock()
		for _, fn := range fns {
			fn(ctx)
		}
	}
	return context.WithValue(ctx, hooksKey{}, h), run
}

// AfterCommit schedules fn to run once the outermost transaction in ctx has
// committed. Hooks are dropped on rollback. Without a transaction fn runs
// immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	h, ok := ctx.Value(hooksKey{}).(*commitHooks)
	if !ok {
		fn(ctx)
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

// InTransaction reports whether ctx belongs to a running transaction scope.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(hooksKey{}).(*commitHooks)
	return ok
}
