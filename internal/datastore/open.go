package datastore

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
)

// Drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

const slowQueryThreshold = 200 * time.Millisecond

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

// MySQLConfig holds MySQL connection parameters.
type MySQLConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DSN builds a go-sql-driver DSN. Times are parsed and stored as UTC.
func (c MySQLConfig) DSN() string {
	cfg := gomysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// Config selects and parameterises a backend.
type Config struct {
	Driver     string
	SQLitePath string
	MySQL      MySQLConfig
}

// Open returns the backend selected by cfg.Driver.
func Open(cfg Config) (Interface, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		return OpenSQLite(cfg.SQLitePath)
	case DriverMySQL:
		return OpenMySQL(cfg.MySQL)
	default:
		return nil, errors.Newf("unsupported datastore driver %q", cfg.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(path string) (*GormStore, error) {
	if path == "" {
		path = "safewatch.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.New(fmt.Errorf("create database directory: %w", err)).
				Component("datastore").
				Category(errors.CategoryStoreStructural).
				Build()
		}
	}

	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, storeError(fmt.Errorf("open sqlite database: %w", err), "open", "documents", "")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, storeError(err, "open", "documents", "")
	}
	// SQLite allows one writer; serialising connections avoids lock errors.
	sqlDB.SetMaxOpenConns(1)

	GetLogger().Info("opened sqlite datastore", logger.String("path", path))
	return NewGormStore(db)
}

// OpenMySQL connects to a MySQL server.
func OpenMySQL(cfg MySQLConfig) (*GormStore, error) {
	store, err := OpenMySQLDSN(cfg.DSN())
	if err != nil {
		return nil, err
	}
	GetLogger().Info("opened mysql datastore",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))
	return store, nil
}

// OpenMySQLDSN connects to a MySQL server using a go-sql-driver DSN.
func OpenMySQLDSN(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, storeError(fmt.Errorf("open mysql database: %w", err), "open", "documents", "")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, storeError(err, "open", "documents", "")
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return NewGormStore(db)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(GetLogger(), slowQueryThreshold),
		TranslateError: true,
	}
}
