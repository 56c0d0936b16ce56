package analysis

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/pkg/errors"
)

type mockLogReader struct {
	lastQuery domain.ValidationLogQuery
	lastDays  int
	err       error
}

func (m *mockLogReader) ListValidationLogs(_ context.Context, q domain.ValidationLogQuery) ([]*domain.ValidationRecord, error) {
	m.lastQuery = q
	return nil, m.err
}

func (m *mockLogReader) ValidationStats(_ context.Context, days int) (*domain.ValidationStats, error) {
	m.lastDays = days
	return nil, m.err
}

func (m *mockLogReader) FlaggedSubstances(context.Context, int) ([]domain.FlaggedSubstance, error) {
	return nil, m.err
}

func TestAdmin_ValidationLogsDefaults(t *testing.T) {
	r := &mockLogReader{}
	page, err := NewAdminService(r).ValidationLogs(context.Background(), domain.ValidationLogQuery{LogType: domain.LogInvalidPFAS})

	require.NoError(t, err)
	assert.Equal(t, DefaultLogLimit, r.lastQuery.Limit)
	assert.Equal(t, domain.LogInvalidPFAS, r.lastQuery.LogType)
	assert.NotNil(t, page.Logs)
	assert.Zero(t, page.Count)
}

func TestAdmin_StatsEmptyWindow(t *testing.T) {
	r := &mockLogReader{}
	stats, err := NewAdminService(r).ValidationStats(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, DefaultStatsDays, r.lastDays)
	assert.Equal(t, 100.0, stats.AccuracyRate)
	assert.Equal(t, DefaultStatsDays, stats.DaysAnalyzed)
	assert.NotNil(t, stats.MostProblematic)
}

func TestAdmin_Validation(t *testing.T) {
	svc := NewAdminService(&mockLogReader{})
	ctx := context.Background()

	_, err := svc.ValidationLogs(ctx, domain.ValidationLogQuery{Limit: 1001})
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
	_, err = svc.ValidationLogs(ctx, domain.ValidationLogQuery{Offset: -1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
	_, err = svc.ValidationStats(ctx, 91)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
	_, err = svc.FlaggedSubstances(ctx, 101)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestAdmin_Unavailable(t *testing.T) {
	svc := NewAdminService(nil)
	_, err := svc.FlaggedSubstances(context.Background(), 5)
	assert.Equal(t, 503, errors.HTTPStatusForCode(errors.GetCode(err)))
}

func TestAdmin_ReaderErrorWrapped(t *testing.T) {
	svc := NewAdminService(&mockLogReader{err: stderrors.New("pq: syntax error")})
	_, err := svc.ValidationLogs(context.Background(), domain.ValidationLogQuery{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}
