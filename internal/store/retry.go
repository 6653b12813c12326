package store

import (
	"context"

	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/resilience"
)

// retrying retries transient failures of the wrapped Store. Permanent
// failures and exhausted retries surface unchanged.
type retrying struct {
	Store
	policy resilience.Policy
}

// NewRetrying wraps st so Upsert, Latest and History retry on transient
// database errors according to p.
func NewRetrying(st Store, p resilience.Policy) Store {
	if p.Name == "" {
		p.Name = "store"
	}
	return &retrying{Store: st, policy: p}
}

func (r *retrying) Upsert(ctx context.Context, rec *model.MergedRecord) error {
	return resilience.Do(ctx, r.policy, func(ctx context.Context) error {
		return r.Store.Upsert(ctx, rec)
	})
}

func (r *retrying) Latest(ctx context.Context, companyID string) (*model.MergedRecord, error) {
	return resilience.DoVal(ctx, r.policy, func(ctx context.Context) (*model.MergedRecord, error) {
		return r.Store.Latest(ctx, companyID)
	})
}

func (r *retrying) History(ctx context.Context, companyID string, limit int) ([]model.MergedRecord, error) {
	return resilience.DoVal(ctx, r.policy, func(ctx context.Context) ([]model.MergedRecord, error) {
		return r.Store.History(ctx, companyID, limit)
	})
}
