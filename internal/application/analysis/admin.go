package analysis

import (
	"context"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Admin query limits.
const (
	DefaultLogLimit     = 100
	MaxLogLimit         = 1000
	DefaultStatsDays    = 7
	MaxStatsDays        = 90
	DefaultFlaggedLimit = 20
	MaxFlaggedLimit     = 100
)

// ValidationLogPage is one page of audit records.
type ValidationLogPage struct {
	Logs   []*domain.ValidationRecord `json:"logs"`
	Count  int                        `json:"count"`
	Offset int                        `json:"offset"`
	Limit  int                        `json:"limit"`
}

// AdminService exposes the validation audit log.
type AdminService interface {
	ValidationLogs(ctx context.Context, q domain.ValidationLogQuery) (*ValidationLogPage, error)
	ValidationStats(ctx context.Context, days int) (*domain.ValidationStats, error)
	FlaggedSubstances(ctx context.Context, limit int) ([]domain.FlaggedSubstance, error)
}

type adminServiceImpl struct {
	reader domain.ValidationLogReader
}

// NewAdminService creates an AdminService. A nil reader makes every call
// report the database as unavailable.
func NewAdminService(reader domain.ValidationLogReader) AdminService {
	return &adminServiceImpl{reader: reader}
}

func (s *adminServiceImpl) ValidationLogs(ctx context.Context, q domain.ValidationLogQuery) (*ValidationLogPage, error) {
	if q.Limit == 0 {
		q.Limit = DefaultLogLimit
	}
	if q.Limit < 1 || q.Limit > MaxLogLimit {
		return nil, errors.InvalidParam("limit must be between 1 and 1000")
	}
	if q.Offset < 0 {
		return nil, errors.InvalidParam("offset must not be negative")
	}
	if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start) {
		return nil, errors.InvalidParam("end_date is before start_date")
	}
	if s.reader == nil {
		return nil, errUnavailable()
	}
	logs, err := s.reader.ListValidationLogs(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "Failed to fetch validation logs")
	}
	if logs == nil {
		logs = []*domain.ValidationRecord{}
	}
	return &ValidationLogPage{Logs: logs, Count: len(logs), Offset: q.Offset, Limit: q.Limit}, nil
}

func (s *adminServiceImpl) ValidationStats(ctx context.Context, days int) (*domain.ValidationStats, error) {
	if days == 0 {
		days = DefaultStatsDays
	}
	if days < 1 || days > MaxStatsDays {
		return nil, errors.InvalidParam("days must be between 1 and 90")
	}
	if s.reader == nil {
		return nil, errUnavailable()
	}
	stats, err := s.reader.ValidationStats(ctx, days)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "Failed to fetch validation stats")
	}
	if stats == nil {
		stats = &domain.ValidationStats{AccuracyRate: 100}
	}
	if stats.MostProblematic == nil {
		stats.MostProblematic = []domain.ProblematicProduct{}
	}
	stats.DaysAnalyzed = days
	return stats, nil
}

func (s *adminServiceImpl) FlaggedSubstances(ctx context.Context, limit int) ([]domain.FlaggedSubstance, error) {
	if limit == 0 {
		limit = DefaultFlaggedLimit
	}
	if limit < 1 || limit > MaxFlaggedLimit {
		return nil, errors.InvalidParam("limit must be between 1 and 100")
	}
	if s.reader == nil {
		return nil, errUnavailable()
	}
	out, err := s.reader.FlaggedSubstances(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "Failed to fetch flagged substances")
	}
	if out == nil {
		out = []domain.FlaggedSubstance{}
	}
	return out, nil
}

func errUnavailable() error {
	return errors.New(errors.ErrCodeServiceUnavailable, "Database unavailable")
}
