package repositories

import (
	"context"
	"time"

	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

type postgresSearchLogRepo struct {
	log      logging.Logger
	executor queryExecutor
}

// NewSearchLogRepo appends to user_searches under the anonymous user.
func NewSearchLogRepo(conn *postgres.Connection, log logging.Logger) analysis.SearchLog {
	return &postgresSearchLogRepo{
		log:      log,
		executor: conn.DB(),
	}
}

func (r *postgresSearchLogRepo) LogSearch(ctx context.Context, productURL, fingerprint string, at time.Time) error {
	query := `
		INSERT INTO user_searches (user_id, product_url, product_url_hash, searched_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.executor.ExecContext(ctx, query, anonymousUserID, productURL, fingerprint, at.UTC()); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to log search")
	}
	r.log.Debug("search logged", logging.String("fingerprint", fingerprint))
	return nil
}
