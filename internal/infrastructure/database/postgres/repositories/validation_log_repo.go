package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// mostProblematicLimit caps the product list in ValidationStats.
const mostProblematicLimit = 10

// ValidationLogRepo is both the durable validation sink and the reader behind
// the admin endpoints.
type ValidationLogRepo struct {
	log      logging.Logger
	executor queryExecutor
	now      func() time.Time
}

// NewValidationLogRepo creates a repository over validation_logs.
func NewValidationLogRepo(conn *postgres.Connection, log logging.Logger) *ValidationLogRepo {
	return &ValidationLogRepo{
		log:      log,
		executor: conn.DB(),
		now:      time.Now,
	}
}

var (
	_ analysis.ValidationSink      = (*ValidationLogRepo)(nil)
	_ analysis.ValidationLogReader = (*ValidationLogRepo)(nil)
)

// Append inserts one record. A record without an ID gets a fresh one.
func (r *ValidationLogRepo) Append(ctx context.Context, rec *analysis.ValidationRecord) error {
	if rec == nil {
		return errors.InvalidParam("nil validation record")
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.New()
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	details := rec.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal validation details")
	}

	query := `
		INSERT INTO validation_logs (
			id, log_type, product_url, product_name, substance_name, severity,
			cas_number, category, confidence, source, details, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.executor.ExecContext(ctx, query,
		id, rec.LogType, rec.ProductURL, rec.ProductName, rec.SubstanceName, rec.Severity,
		rec.CASNumber, rec.Category, rec.Confidence, rec.Source, detailsJSON, ts.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to append validation log")
	}
	return nil
}

// ListValidationLogs returns records newest first.
func (r *ValidationLogRepo) ListValidationLogs(ctx context.Context, q analysis.ValidationLogQuery) ([]*analysis.ValidationRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !q.Start.IsZero() {
		add("timestamp >= $%d", q.Start.UTC())
	}
	if !q.End.IsZero() {
		add("timestamp <= $%d", q.End.UTC())
	}
	if q.ProductURL != "" {
		add("product_url = $%d", q.ProductURL)
	}
	if q.LogType != "" {
		add("log_type = $%d", q.LogType)
	}

	query := `SELECT id, log_type, product_url, product_name, substance_name, severity,
		cas_number, category, confidence, source, details, timestamp
		FROM validation_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, q.Limit, q.Offset)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list validation logs")
	}
	defer rows.Close()

	out := []*analysis.ValidationRecord{}
	for rows.Next() {
		rec, err := scanValidationRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan validation log")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate validation logs")
	}
	return out, nil
}

func scanValidationRecord(row scanner) (*analysis.ValidationRecord, error) {
	var (
		rec     analysis.ValidationRecord
		details []byte
	)
	if err := row.Scan(
		&rec.ID, &rec.LogType, &rec.ProductURL, &rec.ProductName, &rec.SubstanceName, &rec.Severity,
		&rec.CASNumber, &rec.Category, &rec.Confidence, &rec.Source, &details, &rec.Timestamp,
	); err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

// ValidationStats aggregates the last days of records. Accuracy is the share
// of checked substances that were confirmed, 100 when nothing was checked.
func (r *ValidationLogRepo) ValidationStats(ctx context.Context, days int) (*analysis.ValidationStats, error) {
	since := r.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	totals := `
		SELECT
			COUNT(DISTINCT product_url) FILTER (WHERE log_type = 'validation_summary'),
			COUNT(*) FILTER (WHERE log_type = 'invalid_allergen'),
			COUNT(*) FILTER (WHERE log_type = 'invalid_pfas'),
			COALESCE(SUM(
				COALESCE((details->'allergens'->>'total')::int, 0) +
				COALESCE((details->'pfas'->>'total')::int, 0)
			) FILTER (WHERE log_type = 'validation_summary'), 0)
		FROM validation_logs
		WHERE timestamp >= $1
	`
	stats := &analysis.ValidationStats{DaysAnalyzed: days, MostProblematic: []analysis.ProblematicProduct{}}
	var checked int
	err := r.executor.QueryRowContext(ctx, totals, since).Scan(
		&stats.TotalProductsAnalyzed, &stats.TotalInvalidAllergens, &stats.TotalInvalidPFAS, &checked,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to aggregate validation stats")
	}
	stats.AccuracyRate = accuracyRate(checked, stats.TotalInvalidAllergens+stats.TotalInvalidPFAS)

	worst := `
		SELECT product_url, MAX(product_name), COUNT(*) AS invalid_count
		FROM validation_logs
		WHERE timestamp >= $1 AND log_type IN ('invalid_allergen', 'invalid_pfas')
		GROUP BY product_url
		ORDER BY invalid_count DESC, product_url
		LIMIT $2
	`
	rows, err := r.executor.QueryContext(ctx, worst, since, mostProblematicLimit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to rank problematic products")
	}
	defer rows.Close()
	for rows.Next() {
		var p analysis.ProblematicProduct
		if err := rows.Scan(&p.ProductURL, &p.ProductName, &p.InvalidCount); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan problematic product")
		}
		stats.MostProblematic = append(stats.MostProblematic, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate problematic products")
	}
	return stats, nil
}

func accuracyRate(checked, invalid int) float64 {
	if checked <= 0 {
		return 100
	}
	valid := checked - invalid
	if valid < 0 {
		valid = 0
	}
	return math.Round(float64(valid)/float64(checked)*10000) / 100
}

// FlaggedSubstances ranks substances by how often they were rejected.
func (r *ValidationLogRepo) FlaggedSubstances(ctx context.Context, limit int) ([]analysis.FlaggedSubstance, error) {
	query := `
		SELECT substance_name, log_type, COUNT(*) AS times_flagged, MAX(timestamp)
		FROM validation_logs
		WHERE log_type IN ('invalid_allergen', 'invalid_pfas') AND substance_name <> ''
		GROUP BY substance_name, log_type
		ORDER BY times_flagged DESC, substance_name
		LIMIT $1
	`
	rows, err := r.executor.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to rank flagged substances")
	}
	defer rows.Close()

	out := []analysis.FlaggedSubstance{}
	for rows.Next() {
		var f analysis.FlaggedSubstance
		if err := rows.Scan(&f.SubstanceName, &f.LogType, &f.TimesFlagged, &f.LastFlagged); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan flagged substance")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate flagged substances")
	}
	return out, nil
}
