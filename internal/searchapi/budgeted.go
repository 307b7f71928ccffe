package searchapi

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// BudgetGate is the subset of the budget manager the decorator needs.
type BudgetGate interface {
	CanUse(ctx context.Context, api string, count int64) bool
	RecordUse(ctx context.Context, api string, count int64) error
}

// Budgeted checks the quota immediately before every call and records usage
// after any call that reached the provider.
type Budgeted struct {
	next   Searcher
	gate   BudgetGate
	api    string
	logger *zap.Logger
}

// NewBudgeted wraps next with a budget check for api.
func NewBudgeted(next Searcher, gate BudgetGate, api string, logger *zap.Logger) *Budgeted {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Budgeted{next: next, gate: gate, api: api, logger: logger}
}

// API returns the budget name calls are charged to.
func (b *Budgeted) API() string { return b.api }

// Search implements Searcher. It returns ErrBudgetExhausted without calling
// the provider when the gate refuses.
func (b *Budgeted) Search(ctx context.Context, req Request) (*Response, error) {
	if !b.gate.CanUse(ctx, b.api, 1) {
		return nil, ErrBudgetExhausted
	}
	resp, err := b.next.Search(ctx, req)
	if n := charge(resp, err); n > 0 {
		if recErr := b.gate.RecordUse(ctx, b.api, int64(n)); recErr != nil {
			b.logger.Warn("record api usage failed", zap.String("api", b.api), zap.Error(recErr))
		}
	}
	return resp, err
}

// charge returns how many provider requests a search cost. Every retry is a
// billed request, and so is a response that arrived but could not be decoded.
func charge(resp *Response, err error) int {
	var perr *ProviderError
	switch {
	case err == nil:
		if resp != nil && resp.Attempts > 1 {
			return resp.Attempts
		}
		return 1
	case errors.As(err, &perr):
		return max(perr.Attempts, 1)
	case IsUpstream(err):
		return 1
	default:
		return 0
	}
}
