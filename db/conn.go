package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/fenixflow/ff-storage-sub000/internal/logger"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Pool is a Querier that can also start transactions. *sql.DB satisfies it.
type Pool interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	PingContext(ctx context.Context) error
}

// ConnectionConfig holds database connection parameters
type ConnectionConfig struct {
	Dialect         Dialect
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	ApplicationName string

	// DSN, when set, is used verbatim instead of the fields above.
	DSN string

	Pool PoolConfig
}

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MinConns        int32
	MaxConns        int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
}

// DefaultPoolConfig sizes the pool from the CPU count.
func DefaultPoolConfig() PoolConfig {
	minConns := int32(runtime.NumCPU())
	if minConns < 4 {
		minConns = 4
	}
	return PoolConfig{
		MinConns:        minConns,
		MaxConns:        minConns * 4,
		MaxConnIdleTime: 5 * time.Minute,
		MaxConnLifetime: 10 * time.Minute,
	}
}

// DB is a *sql.DB bound to its dialect. For PostgreSQL it owns the
// underlying pgx pool.
type DB struct {
	*sql.DB
	Dialect Dialect

	pgPool *pgxpool.Pool
}

// Close closes the database handle and the pgx pool behind it.
func (d *DB) Close() error {
	err := d.DB.Close()
	if d.pgPool != nil {
		d.pgPool.Close()
	}
	return err
}

// Connect establishes a database connection using the provided configuration
func Connect(ctx context.Context, config *ConnectionConfig) (*DB, error) {
	log := logger.Get()

	log.Debug("Attempting database connection",
		"dialect", config.Dialect,
		"host", config.Host,
		"port", config.Port,
		"database", config.Database,
		"user", config.User,
		"sslmode", config.SSLMode,
		"application_name", config.ApplicationName,
	)

	pool := config.Pool
	if pool == (PoolConfig{}) {
		pool = DefaultPoolConfig()
	}

	var (
		conn   *sql.DB
		pgPool *pgxpool.Pool
		err    error
	)
	switch config.Dialect {
	case Postgres:
		pgPool, err = openPgxPool(ctx, BuildDSN(config), pool)
		if err != nil {
			log.Debug("Database connection failed", "error", err)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		conn = stdlib.OpenDBFromPool(pgPool)
	case MySQL, SQLServer:
		conn, err = sql.Open(config.Dialect.DriverName(), BuildDSN(config))
		if err != nil {
			log.Debug("Database connection failed", "error", err)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		conn.SetMaxOpenConns(int(pool.MaxConns))
		conn.SetMaxIdleConns(int(pool.MinConns))
		conn.SetConnMaxIdleTime(pool.MaxConnIdleTime)
		conn.SetConnMaxLifetime(pool.MaxConnLifetime)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", config.Dialect)
	}

	db := &DB{DB: conn, Dialect: config.Dialect, pgPool: pgPool}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Debug("Database ping failed", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug("Database connection established successfully")
	return db, nil
}

// Wrap binds an existing *sql.DB to a dialect.
func Wrap(conn *sql.DB, dialect Dialect) *DB {
	return &DB{DB: conn, Dialect: dialect}
}

func openPgxPool(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	parseConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MinConns > 0 {
		parseConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		parseConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnIdleTime > 0 {
		parseConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.MaxConnLifetime > 0 {
		parseConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	parseConfig.BeforeConnect = func(ctx context.Context, conn *pgx.ConnConfig) error {
		logger.Get().Debug("Opening pooled connection", "host", conn.Host, "port", conn.Port)
		return nil
	}

	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return pgxpool.NewWithConfig(connCtx, parseConfig)
}

// BuildDSN constructs a driver connection string from connection parameters
func BuildDSN(config *ConnectionConfig) string {
	if config.DSN != "" {
		return config.DSN
	}
	switch config.Dialect {
	case MySQL:
		return buildMySQLDSN(config)
	case SQLServer:
		return buildSQLServerDSN(config)
	}
	return buildPostgresDSN(config)
}

func buildPostgresDSN(config *ConnectionConfig) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("host=%s", config.Host))
	parts = append(parts, fmt.Sprintf("port=%d", config.Port))
	parts = append(parts, fmt.Sprintf("dbname=%s", config.Database))
	parts = append(parts, fmt.Sprintf("user=%s", config.User))

	if config.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", config.Password))
	}

	if config.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", config.SSLMode))
	}

	if config.ApplicationName != "" {
		parts = append(parts, fmt.Sprintf("application_name=%s", config.ApplicationName))
	}

	return strings.Join(parts, " ")
}

func buildMySQLDSN(config *ConnectionConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = config.User
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	cfg.DBName = config.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// RowsAffected must count matched rows, not changed rows
	cfg.ClientFoundRows = true
	if config.ApplicationName != "" {
		cfg.ConnectionAttributes = "program_name:" + config.ApplicationName
	}
	return cfg.FormatDSN()
}

func buildSQLServerDSN(config *ConnectionConfig) string {
	query := url.Values{}
	if config.Database != "" {
		query.Set("database", config.Database)
	}
	if config.ApplicationName != "" {
		query.Set("app name", config.ApplicationName)
	}
	if config.SSLMode == "disable" {
		query.Set("encrypt", "disable")
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(config.User, config.Password),
		Host:     net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		RawQuery: query.Encode(),
	}
	return u.String()
}
