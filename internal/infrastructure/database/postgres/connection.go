// Package postgres holds the PostgreSQL connection pool, schema migrations
// and the durable SafeScan stores built on top of them.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// database/sql driver names.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

const (
	applicationName = "safescan"
	connectTimeout  = 5 * time.Second
	// Pool usage above this ratio is logged by HealthCheck.
	poolSaturationWarn = 0.8
)

// openDB is swapped in tests.
var openDB = sql.Open

type PostgresConfig struct {
	Driver   string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Server-side limits sent as connection parameters. Analyses write one
	// row at a time, so anything slower than a few seconds is a stuck lock.
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

func (c PostgresConfig) withDefaults() PostgresConfig {
	if c.Driver == "" {
		c.Driver = DriverPQ
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = 30 * time.Second
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 10 * time.Second
	}
	return c
}

// DSN renders cfg as a postgres:// URL. lib/pq and the pgx stdlib driver
// both accept it.
func (c PostgresConfig) DSN() string {
	c = c.withDefaults()
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("application_name", applicationName)
	q.Set("statement_timeout", strconv.FormatInt(c.StatementTimeout.Milliseconds(), 10))
	q.Set("lock_timeout", strconv.FormatInt(c.LockTimeout.Milliseconds(), 10))

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Connection is the shared pool behind every PostgreSQL store.
type Connection struct {
	db        *sql.DB
	logger    logging.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewConnection opens the pool and pings it.
func NewConnection(cfg PostgresConfig, log logging.Logger) (*Connection, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	cfg = cfg.withDefaults()
	if cfg.Driver != DriverPQ && cfg.Driver != DriverPGX {
		return nil, errors.New(errors.ErrCodeValidation, "unsupported database driver").WithDetail(cfg.Driver)
	}

	db, err := openDB(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open database connection")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "database connection failed")
	}

	log.Info("postgres connected",
		logging.String("driver", cfg.Driver),
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.Database),
		logging.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return &Connection{db: db, logger: log}, nil
}

// NewConnectionWithDB wraps an already open pool, such as a sqlmock.
func NewConnectionWithDB(db *sql.DB, log logging.Logger) *Connection {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Connection{db: db, logger: log}
}

func (c *Connection) DB() *sql.DB { return c.db }

func (c *Connection) Stats() sql.DBStats { return c.db.Stats() }

// HealthCheck pings the database and warns when the pool is nearly
// exhausted, which is the first sign of a slow analysis store.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "database health check failed")
	}
	if s := c.db.Stats(); s.OpenConnections > 0 {
		usage := float64(s.InUse) / float64(s.OpenConnections)
		if usage > poolSaturationWarn {
			c.logger.Warn("postgres pool nearly saturated",
				logging.Int("in_use", s.InUse),
				logging.Int("open", s.OpenConnections),
				logging.Int64("wait_count", s.WaitCount),
			)
		}
	}
	return nil
}

// RunMigrations applies pending migrations over the open pool. An empty
// sourceURL uses the migrations compiled into the binary.
func (c *Connection) RunMigrations(sourceURL string) error {
	g, err := migratorForDB(c.db, sourceURL)
	if err != nil {
		return err
	}
	if err := g.Up(); err != nil {
		return err
	}
	version, dirty, err := g.Status()
	if err != nil {
		c.logger.Warn("could not read schema version", logging.Err(err))
		return nil
	}
	c.logger.Info("schema migrated",
		logging.String("source", g.Source()),
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}

// Close closes the pool once; later calls return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.db.Close()
		if c.closeErr != nil {
			c.logger.Error("failed to close postgres pool", logging.Err(c.closeErr))
			return
		}
		c.logger.Info("postgres pool closed")
	})
	return c.closeErr
}
