package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
)

type mockService struct{ mock.Mock }

func (m *mockService) Analyze(ctx context.Context, req *app.AnalyzeRequest) (*app.AnalyzeResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*app.AnalyzeResponse)
	return resp, args.Error(1)
}

func (m *mockService) Wait() {}

type mockReviewService struct{ mock.Mock }

func (m *mockReviewService) Insights(ctx context.Context, fingerprint string, forceRefresh bool) (*domain.ReviewInsights, error) {
	args := m.Called(ctx, fingerprint, forceRefresh)
	out, _ := args.Get(0).(*domain.ReviewInsights)
	return out, args.Error(1)
}

func (m *mockReviewService) Search(ctx context.Context, q domain.ReviewQuery) (*app.ReviewSearchResponse, error) {
	args := m.Called(ctx, q)
	out, _ := args.Get(0).(*app.ReviewSearchResponse)
	return out, args.Error(1)
}

func (m *mockReviewService) Summary(ctx context.Context, fingerprint string) (*domain.ReviewSummary, error) {
	args := m.Called(ctx, fingerprint)
	out, _ := args.Get(0).(*domain.ReviewSummary)
	return out, args.Error(1)
}

type mockAdminService struct{ mock.Mock }

func (m *mockAdminService) ValidationLogs(ctx context.Context, q domain.ValidationLogQuery) (*app.ValidationLogPage, error) {
	args := m.Called(ctx, q)
	out, _ := args.Get(0).(*app.ValidationLogPage)
	return out, args.Error(1)
}

func (m *mockAdminService) ValidationStats(ctx context.Context, days int) (*domain.ValidationStats, error) {
	args := m.Called(ctx, days)
	out, _ := args.Get(0).(*domain.ValidationStats)
	return out, args.Error(1)
}

func (m *mockAdminService) FlaggedSubstances(ctx context.Context, limit int) ([]domain.FlaggedSubstance, error) {
	args := m.Called(ctx, limit)
	out, _ := args.Get(0).([]domain.FlaggedSubstance)
	return out, args.Error(1)
}
