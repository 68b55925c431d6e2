package enrich

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/sells-group/topper-enrich/internal/generate"
	"github.com/sells-group/topper-enrich/internal/model"
	"github.com/sells-group/topper-enrich/internal/prompt"
	"github.com/sells-group/topper-enrich/internal/store"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) UpdateTopper(ctx context.Context, id string, u store.Update) error {
	args := m.Called(ctx, id, u)
	return args.Error(0)
}

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) Collect(ctx context.Context, t model.Topper, log *zap.Logger) []model.Evidence {
	args := m.Called(ctx, t, log)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.Evidence)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, p prompt.Prompt, log *zap.Logger) (*generate.Result, error) {
	args := m.Called(ctx, p, log)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generate.Result), args.Error(1)
}

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListPending(ctx context.Context, limit int) ([]model.Topper, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Topper), args.Error(1)
}
