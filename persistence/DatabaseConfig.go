package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

const defaultMysqlArgs = "root:admin@(127.0.0.1:3306)/workflow_platform" +
	"?charset=utf8mb4&parseTime=True&loc=Local&timeout=5s"

type DatabaseConfig struct {
	DriverType string
	DriverArgs string
}

// ParseDatabaseConfigFromEnv reads DATABASE_DRIVER and DATABASE_ARGS.
// DATABASE_ARGS is a driver DSN, e.g. user:pass@(host:3306)/dbname?opts
func ParseDatabaseConfigFromEnv() (*DatabaseConfig, error) {
	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = "mysql"
	}
	args := os.ExpandEnv(os.Getenv("DATABASE_ARGS"))
	if args == "" {
		if driver != "mysql" {
			return nil, errors.New("DATABASE_ARGS is not set")
		}
		args = defaultMysqlArgs
	}
	return &DatabaseConfig{DriverType: driver, DriverArgs: args}, nil
}

// MysqlDatabaseConfig builds a mysql config from discrete connection fields,
// host may carry an optional port ("127.0.0.1" or "127.0.0.1:3306").
func MysqlDatabaseConfig(host, user, password, database string) *DatabaseConfig {
	if !strings.Contains(host, ":") {
		host = host + ":3306"
	}
	args := fmt.Sprintf("%s:%s@(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=5s",
		user, password, host, database)
	return &DatabaseConfig{DriverType: "mysql", DriverArgs: args}
}

// DatabaseName extracts the schema name from the DSN.
func (c *DatabaseConfig) DatabaseName() string {
	args := c.DriverArgs
	if idx := strings.Index(args, "?"); idx >= 0 {
		args = args[0:idx]
	}
	if idx := strings.LastIndex(args, "/"); idx >= 0 {
		return args[idx+1:]
	}
	return ""
}

// PrepareMysqlDatabase creates the schema named in the DSN when absent,
// connecting to the server without a default schema.
func PrepareMysqlDatabase(driverArgs string) error {
	idx := strings.LastIndex(driverArgs, "/")
	if idx < 0 {
		return errors.New("invalid mysql DSN '" + driverArgs + "'")
	}
	databaseName := driverArgs[idx+1:]
	if q := strings.Index(databaseName, "?"); q >= 0 {
		databaseName = databaseName[0:q]
	}
	if databaseName == "" {
		return errors.New("no database name in mysql DSN")
	}

	db, err := sql.Open("mysql", driverArgs[0:idx+1])
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("CREATE DATABASE IF NOT EXISTS " + databaseName +
		" DEFAULT CHARACTER SET utf8mb4")
	return err
}
