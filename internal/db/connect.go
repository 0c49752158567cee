// Package db opens the GORM connection backing the booking store.
package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormConfig silences GORM's query logging; the daemon does its own.
func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
}

// ConnectSQLite opens (creating if needed) a SQLite database file. This is
// the default single-host deployment.
func ConnectSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db: sqlite path is required")
	}
	gdb, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	return gdb, nil
}

// MySQLDSN builds a MySQL DSN from connection settings.
func MySQLDSN(user, host string, port int, database string) string {
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", user, host, port, database)
}

// ConnectMySQL opens a MySQL-compatible database, for deployments that
// share the requests log between hosts.
func ConnectMySQL(user, host string, port int, database string) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(MySQLDSN(user, host, port, database)), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", host, port, database, err)
	}
	return gdb, nil
}
