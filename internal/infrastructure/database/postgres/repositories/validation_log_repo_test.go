package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/SafeScan/pkg/errors"
)

var validationColumns = []string{
	"id", "log_type", "product_url", "product_name", "substance_name", "severity",
	"cas_number", "category", "confidence", "source", "details", "timestamp",
}

type ValidationLogRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo *ValidationLogRepo
	now  time.Time
}

func (s *ValidationLogRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	logger := logging.NewNopLogger()
	s.repo = NewValidationLogRepo(postgres.NewConnectionWithDB(s.db, logger), logger)
	s.now = time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	s.repo.now = func() time.Time { return s.now }
}

func (s *ValidationLogRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *ValidationLogRepoTestSuite) TestAppend() {
	id := uuid.New()
	ts := time.Date(2026, 3, 7, 9, 30, 0, 0, time.UTC)
	s.mock.ExpectExec("INSERT INTO validation_logs").
		WithArgs(
			id, analysis.LogInvalidAllergen, repoTestURL, "Trail Mix", "Glitter", "high",
			"", "", 0.9, "ai", []byte(`{"strict":false}`), ts,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.repo.Append(context.Background(), &analysis.ValidationRecord{
		ID:            id.String(),
		LogType:       analysis.LogInvalidAllergen,
		ProductURL:    repoTestURL,
		ProductName:   "Trail Mix",
		SubstanceName: "Glitter",
		Severity:      "high",
		Confidence:    0.9,
		Source:        "ai",
		Details:       map[string]interface{}{"strict": false},
		Timestamp:     ts,
	})
	s.NoError(err)
}

func (s *ValidationLogRepoTestSuite) TestAppend_FillsIDAndTimestamp() {
	s.mock.ExpectExec("INSERT INTO validation_logs").
		WithArgs(
			sqlmock.AnyArg(), analysis.LogValidationSummary, "", "", "", "",
			"", "", 0.0, "", []byte(`{}`), s.now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.NoError(s.repo.Append(context.Background(), &analysis.ValidationRecord{LogType: analysis.LogValidationSummary}))
}

func (s *ValidationLogRepoTestSuite) TestListValidationLogs_Filters() {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.mock.ExpectQuery("FROM validation_logs WHERE timestamp >= \\$1 AND log_type = \\$2 ORDER BY timestamp DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(start, analysis.LogInvalidPFAS, 50, 10).
		WillReturnRows(sqlmock.NewRows(validationColumns).AddRow(
			uuid.NewString(), analysis.LogInvalidPFAS, repoTestURL, "Pan", "Mystery Fluoro", "",
			"123-45-6", "", 0.7, "ai", []byte(`{"strict":true}`), start,
		))

	logs, err := s.repo.ListValidationLogs(context.Background(), analysis.ValidationLogQuery{
		Start:   start,
		LogType: analysis.LogInvalidPFAS,
		Limit:   50,
		Offset:  10,
	})
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal("Mystery Fluoro", logs[0].SubstanceName)
	s.Equal(true, logs[0].Details["strict"])
}

func (s *ValidationLogRepoTestSuite) TestListValidationLogs_NoFilters() {
	s.mock.ExpectQuery("FROM validation_logs ORDER BY timestamp DESC LIMIT \\$1 OFFSET \\$2").
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows(validationColumns))

	logs, err := s.repo.ListValidationLogs(context.Background(), analysis.ValidationLogQuery{Limit: 100})
	s.Require().NoError(err)
	s.NotNil(logs)
	s.Empty(logs)
}

func (s *ValidationLogRepoTestSuite) TestValidationStats() {
	since := s.now.Add(-7 * 24 * time.Hour)
	s.mock.ExpectQuery("COUNT\\(DISTINCT product_url\\)").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"products", "allergens", "pfas", "checked"}).AddRow(4, 3, 1, 40))
	s.mock.ExpectQuery("GROUP BY product_url").
		WithArgs(since, mostProblematicLimit).
		WillReturnRows(sqlmock.NewRows([]string{"product_url", "product_name", "invalid_count"}).
			AddRow(repoTestURL, "Trail Mix", 3))

	stats, err := s.repo.ValidationStats(context.Background(), 7)
	s.Require().NoError(err)
	s.Equal(4, stats.TotalProductsAnalyzed)
	s.Equal(3, stats.TotalInvalidAllergens)
	s.Equal(1, stats.TotalInvalidPFAS)
	s.InDelta(90.0, stats.AccuracyRate, 1e-9)
	s.Equal(7, stats.DaysAnalyzed)
	s.Require().Len(stats.MostProblematic, 1)
	s.Equal(3, stats.MostProblematic[0].InvalidCount)
}

func (s *ValidationLogRepoTestSuite) TestValidationStats_QueryError() {
	s.mock.ExpectQuery("COUNT").WillReturnError(errors.New("timeout"))

	_, err := s.repo.ValidationStats(context.Background(), 7)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *ValidationLogRepoTestSuite) TestFlaggedSubstances() {
	last := s.now.Add(-time.Hour)
	s.mock.ExpectQuery("GROUP BY substance_name, log_type").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"substance_name", "log_type", "times_flagged", "max"}).
			AddRow("Glitter", analysis.LogInvalidAllergen, 5, last))

	out, err := s.repo.FlaggedSubstances(context.Background(), 20)
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("Glitter", out[0].SubstanceName)
	s.Equal(5, out[0].TimesFlagged)
	s.True(last.Equal(out[0].LastFlagged))
}

func TestValidationLogRepoTestSuite(t *testing.T) {
	suite.Run(t, new(ValidationLogRepoTestSuite))
}

func TestAccuracyRate(t *testing.T) {
	assert.Equal(t, 100.0, accuracyRate(0, 0))
	assert.Equal(t, 75.0, accuracyRate(4, 1))
	assert.Equal(t, 66.67, accuracyRate(3, 1))
	assert.Equal(t, 0.0, accuracyRate(2, 5))
}
