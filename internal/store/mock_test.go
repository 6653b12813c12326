package store

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/company-profiler/internal/model"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upsert(ctx context.Context, rec *model.MergedRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockStore) Latest(ctx context.Context, companyID string) (*model.MergedRecord, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MergedRecord), args.Error(1)
}

func (m *mockStore) History(ctx context.Context, companyID string, limit int) ([]model.MergedRecord, error) {
	args := m.Called(ctx, companyID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MergedRecord), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockStore) Close() error { return m.Called().Error(0) }
