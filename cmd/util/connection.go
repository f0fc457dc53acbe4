package util

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenixflow/ff-storage-sub000/db"
)

// ConnectionFlags are the connection flags shared by every command that
// talks to a database.
type ConnectionFlags struct {
	Dialect  string
	Host     string
	Port     int
	DB       string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// Register adds the connection flags to cmd.
func (f *ConnectionFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Dialect, "dialect", "", "Database dialect: postgres, mysql, sqlserver (env: FFSTORAGE_DIALECT, default postgres)")
	cmd.Flags().StringVar(&f.Host, "host", "localhost", "Database server host (env: PGHOST, MYSQL_HOST, MSSQL_HOST)")
	cmd.Flags().IntVar(&f.Port, "port", 0, "Database server port (env: PGPORT, MYSQL_PORT, MSSQL_PORT)")
	cmd.Flags().StringVar(&f.DB, "db", "", "Database name (required) (env: PGDATABASE, MYSQL_DATABASE, MSSQL_DATABASE)")
	cmd.Flags().StringVar(&f.User, "user", "", "Database user name (required) (env: PGUSER, MYSQL_USER, MSSQL_USER)")
	cmd.Flags().StringVar(&f.Password, "password", "", "Database password (env: PGPASSWORD, MYSQL_PASSWORD, MSSQL_PASSWORD)")
	cmd.Flags().StringVar(&f.SSLMode, "sslmode", "prefer", "PostgreSQL sslmode")
	cmd.Flags().StringVar(&f.DSN, "dsn", "", "Full connection string; overrides the other connection flags (env: FFSTORAGE_DSN)")
}

// PreRunE fills flags the user did not set from the environment of the
// selected dialect and validates the result.
func (f *ConnectionFlags) PreRunE(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("dialect") {
		f.Dialect = GetEnvWithDefault("FFSTORAGE_DIALECT", "postgres")
	}
	dialect, err := db.ParseDialect(f.Dialect)
	if err != nil {
		return err
	}
	f.Dialect = string(dialect)

	if !cmd.Flags().Changed("dsn") {
		f.DSN = GetEnvWithDefault("FFSTORAGE_DSN", "")
	}
	if f.DSN != "" {
		return nil
	}

	env := dialectEnv[dialect]
	if !cmd.Flags().Changed("host") {
		f.Host = GetEnvWithDefault(env.host, f.Host)
	}
	if !cmd.Flags().Changed("port") {
		f.Port = GetEnvIntWithDefault(env.port, env.defaultPort)
	}
	if !cmd.Flags().Changed("db") {
		f.DB = GetEnvWithDefault(env.database, f.DB)
	}
	if !cmd.Flags().Changed("user") {
		f.User = GetEnvWithDefault(env.user, f.User)
	}
	if f.Password == "" {
		f.Password = GetEnvWithDefault(env.password, "")
	}

	if f.DB == "" {
		return fmt.Errorf("database name is required (use --db flag or %s environment variable)", env.database)
	}
	if f.User == "" {
		return fmt.Errorf("database user is required (use --user flag or %s environment variable)", env.user)
	}
	return nil
}

// Config returns the connection configuration described by the flags.
func (f *ConnectionFlags) Config() *db.ConnectionConfig {
	return &db.ConnectionConfig{
		Dialect:         db.Dialect(f.Dialect),
		Host:            f.Host,
		Port:            f.Port,
		Database:        f.DB,
		User:            f.User,
		Password:        f.Password,
		SSLMode:         f.SSLMode,
		ApplicationName: "ffstorage",
		DSN:             f.DSN,
	}
}

// Connect opens the database described by the flags.
func (f *ConnectionFlags) Connect(ctx context.Context) (*db.DB, error) {
	conn, err := db.Connect(ctx, f.Config())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}
