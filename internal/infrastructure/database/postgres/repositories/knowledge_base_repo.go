package repositories

import (
	"context"

	"github.com/lib/pq"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

type postgresKnowledgeBaseRepo struct {
	log      logging.Logger
	executor queryExecutor
}

// NewKnowledgeBaseRepo reads the allergen and PFAS reference tables.
func NewKnowledgeBaseRepo(conn *postgres.Connection, log logging.Logger) substance.KnowledgeBaseStore {
	return &postgresKnowledgeBaseRepo{
		log:      log,
		executor: conn.DB(),
	}
}

func (r *postgresKnowledgeBaseRepo) GetAllAllergens(ctx context.Context) ([]substance.Record, error) {
	query := `SELECT name, synonyms, severity, health_effects FROM allergens ORDER BY name`
	rows, err := r.executor.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeKBUnavailable, "failed to load allergens")
	}
	defer rows.Close()

	var out []substance.Record
	for rows.Next() {
		var rec substance.Record
		var severity string
		if err := rows.Scan(&rec.Name, pq.Array(&rec.Synonyms), &severity, &rec.HealthEffects); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeKBInvalid, "failed to scan allergen")
		}
		rec.Severity = substance.Severity(severity).Normalize()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeKBUnavailable, "failed to iterate allergens")
	}
	r.log.Debug("allergens loaded", logging.Int("count", len(out)))
	return out, nil
}

func (r *postgresKnowledgeBaseRepo) GetAllPFAS(ctx context.Context) ([]substance.Record, error) {
	query := `SELECT name, cas_number, synonyms, health_effects FROM pfas_compounds ORDER BY name`
	rows, err := r.executor.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeKBUnavailable, "failed to load PFAS compounds")
	}
	defer rows.Close()

	var out []substance.Record
	for rows.Next() {
		var rec substance.Record
		if err := rows.Scan(&rec.Name, &rec.CASNumber, pq.Array(&rec.Synonyms), &rec.HealthEffects); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeKBInvalid, "failed to scan PFAS compound")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeKBUnavailable, "failed to iterate PFAS compounds")
	}
	r.log.Debug("PFAS compounds loaded", logging.Int("count", len(out)))
	return out, nil
}
