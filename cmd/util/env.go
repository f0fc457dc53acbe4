package util

import (
	"os"
	"strconv"

	"github.com/fenixflow/ff-storage-sub000/db"
)

// GetEnvWithDefault returns the value of an environment variable or a default value if not set
func GetEnvWithDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvIntWithDefault returns the value of an environment variable as int or a default value if not set
func GetEnvIntWithDefault(envVar string, defaultValue int) int {
	if value := os.Getenv(envVar); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// envNames are the environment variables each dialect reads its
// connection settings from.
type envNames struct {
	host, port, database, user, password string
	defaultPort                          int
}

var dialectEnv = map[db.Dialect]envNames{
	db.Postgres: {
		host: "PGHOST", port: "PGPORT", database: "PGDATABASE", user: "PGUSER", password: "PGPASSWORD",
		defaultPort: 5432,
	},
	db.MySQL: {
		host: "MYSQL_HOST", port: "MYSQL_PORT", database: "MYSQL_DATABASE", user: "MYSQL_USER", password: "MYSQL_PASSWORD",
		defaultPort: 3306,
	},
	db.SQLServer: {
		host: "MSSQL_HOST", port: "MSSQL_PORT", database: "MSSQL_DATABASE", user: "MSSQL_USER", password: "MSSQL_PASSWORD",
		defaultPort: 1433,
	},
}
