package datastore

import (
	"context"
	"database/sql/driver"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/tphakala/safewatch/internal/errors"
)

var (
	transientMarkers = []string{
		"database is locked", "database table is locked", "busy", "timeout", "timed out",
		"connection refused", "connection reset", "broken pipe", "bad connection",
		"too many connections", "server has gone away", "lost connection", "deadlock",
		"i/o timeout", "no such host",
	}
	structuralMarkers = []string{
		"no such table", "no such column", "doesn't exist", "unknown column", "unknown database",
		"syntax error", "has no column", "error 1146", "error 1054", "error 1049",
		"readonly database", "read-only", "access denied", "not null constraint",
	}
	conflictMarkers = []string{
		"unique constraint", "duplicate entry", "error 1062", "duplicated key",
	}
)

// storeError tags err as transient, structural, conflict or generic database failure.
func storeError(err error, operation, collection, id string) error {
	if err == nil {
		return nil
	}
	category, priority := classify(err)
	builder := errors.New(err).
		Component("datastore").
		Category(category).
		Context("operation", operation).
		Context("collection", collection)
	if id != "" {
		builder = builder.Context("id", id)
	}
	if priority != "" {
		builder = builder.Priority(priority)
	}
	return builder.Build()
}

func classify(err error) (errors.ErrorCategory, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, driver.ErrBadConn):
		return errors.CategoryStoreTransient, ""
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.CategoryConflict, ""
	}
	if category, priority, ok := classifyDriver(err); ok {
		return category, priority
	}

	msg := strings.ToLower(err.Error())
	for _, m := range conflictMarkers {
		if strings.Contains(msg, m) {
			return errors.CategoryConflict, ""
		}
	}
	for _, m := range structuralMarkers {
		if strings.Contains(msg, m) {
			return errors.CategoryStoreStructural, errors.PriorityHigh
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return errors.CategoryStoreTransient, ""
		}
	}
	return errors.CategoryDatabase, errors.PriorityMedium
}

// classifyDriver uses the typed driver errors before falling back to
// message matching.
func classifyDriver(err error) (errors.ErrorCategory, string, bool) {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return errors.CategoryStoreTransient, "", true
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return errors.CategoryConflict, "", true
		case sqliteErr.Code == sqlite3.ErrReadonly, sqliteErr.Code == sqlite3.ErrCorrupt:
			return errors.CategoryStoreStructural, errors.PriorityHigh, true
		}
		return "", "", false
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1205, 1213: // lock wait timeout, deadlock
			return errors.CategoryStoreTransient, "", true
		case 1062: // duplicate entry
			return errors.CategoryConflict, "", true
		case 1044, 1045, 1049, 1054, 1146: // access denied, unknown database, column or table
			return errors.CategoryStoreStructural, errors.PriorityHigh, true
		}
	}
	return "", "", false
}

func notFoundError(collection, id string) error {
	return errors.Newf("%s document not found", collection).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("collection", collection).
		Context("id", id).
		Build()
}

func versionConflictError(collection, id string, expected, actual int64) error {
	return errors.Newf("%s document %s changed concurrently", collection, id).
		Component("datastore").
		Category(errors.CategoryConflict).
		Context("expected_version", expected).
		Context("actual_version", actual).
		Build()
}

func existsError(collection, id string) error {
	return errors.Newf("%s document %s already exists", collection, id).
		Component("datastore").
		Category(errors.CategoryConflict).
		Build()
}

func validationError(message, field string) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Build()
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isEnhanced(err error) bool {
	var ee *errors.EnhancedError
	return errors.As(err, &ee)
}
