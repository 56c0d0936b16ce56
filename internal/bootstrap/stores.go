package bootstrap

import (
	"context"
	"strings"

	"github.com/turtacn/SafeScan/internal/config"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/offline"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/prometheus"
)

// stores groups the durable ports. In offline mode every member is the
// offline.Store.
type stores struct {
	knowledgeBase  substance.KnowledgeBaseStore
	analyses       domain.AnalysisStore
	insights       domain.ReviewInsightsStore
	searchLog      domain.SearchLog
	validationLogs domain.ValidationLogReader
	// validationRepo is set in postgres mode only.
	validationRepo *repositories.ValidationLogRepo
}

func (a *App) wireStores(ctx context.Context) (*stores, error) {
	if a.Config.Storage.Mode != config.StorageModePostgres {
		a.Logger.Warn("running without durable storage; knowledge base is empty and analyses are not persisted")
		s := offline.New()
		return &stores{
			knowledgeBase:  s,
			analyses:       s,
			insights:       s,
			searchLog:      s,
			validationLogs: s,
		}, nil
	}

	conn, err := OpenPostgres(a.Config.Database, a.Logger)
	if err != nil {
		return nil, err
	}
	a.onClose("postgres", conn.Close)
	a.addCheck("postgres", conn.HealthCheck)

	if a.Config.Database.AutoMigrate {
		if err := conn.RunMigrations(strings.TrimPrefix(a.Config.Database.MigrationPath, "file://")); err != nil {
			return nil, err
		}
		a.Logger.Info("database migrations applied")
	}
	if a.Metrics != nil {
		prometheus.RecordDBPool(a.Metrics, "postgres", conn.Stats())
	}

	log := a.Logger.Named("postgres")
	validation := repositories.NewValidationLogRepo(conn, log)
	return &stores{
		knowledgeBase:  repositories.NewKnowledgeBaseRepo(conn, log),
		analyses:       repositories.NewAnalysisRepo(conn, log),
		insights:       repositories.NewReviewInsightsRepo(conn, log),
		searchLog:      repositories.NewSearchLogRepo(conn, log),
		validationLogs: validation,
		validationRepo: validation,
	}, nil
}

// OpenPostgres connects with the database section of the config.
func OpenPostgres(cfg config.DatabaseConfig, logger logging.Logger) (*postgres.Connection, error) {
	return postgres.NewConnection(postgres.PostgresConfig{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		Database:        cfg.DBName,
		Username:        cfg.User,
		Password:        cfg.Password,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger.Named("postgres"))
}
