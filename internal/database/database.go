package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens (and creates when missing) the sqlite database at path and applies the schema.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps ":memory:" a single database
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("database initialized")
	}
	return db, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on"
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            phone TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'customer',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            deactivated_at DATETIME,
            deactivated_by INTEGER,
            last_login DATETIME,
            is_verified BOOLEAN NOT NULL DEFAULT 0,
            verified_at DATETIME,
            verified_by INTEGER,
            helper_services TEXT NOT NULL DEFAULT '',
            bio TEXT NOT NULL DEFAULT '',
            rating REAL NOT NULL DEFAULT 0,
            total_bookings INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS services (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            description TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL,
            icon TEXT NOT NULL DEFAULT 'help-circle',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_by INTEGER,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_id INTEGER NOT NULL REFERENCES users(id),
            helper_id INTEGER REFERENCES users(id),
            service_id INTEGER NOT NULL REFERENCES services(id),
            description TEXT NOT NULL,
            address TEXT NOT NULL,
            lat REAL,
            lng REAL,
            scheduled_at DATETIME NOT NULL,
            estimated_duration INTEGER NOT NULL DEFAULT 60,
            status TEXT NOT NULL DEFAULT 'REQUESTED',
            completed_at DATETIME,
            customer_rating INTEGER CHECK (customer_rating BETWEEN 1 AND 5),
            customer_review TEXT NOT NULL DEFAULT '',
            admin_notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS booking_status_history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            status TEXT NOT NULL,
            changed_by INTEGER NOT NULL,
            changed_at DATETIME NOT NULL,
            reason TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            sender_id INTEGER REFERENCES users(id),
            content TEXT NOT NULL,
            message_type TEXT NOT NULL DEFAULT 'text',
            image_url TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS message_reads (
            message_id INTEGER NOT NULL REFERENCES messages(id),
            user_id INTEGER NOT NULL,
            read_at DATETIME NOT NULL,
            PRIMARY KEY (message_id, user_id)
        )`,
		`CREATE TABLE IF NOT EXISTS admin_actions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            admin_id INTEGER NOT NULL,
            action_type TEXT NOT NULL,
            target_type TEXT NOT NULL,
            target_id INTEGER NOT NULL,
            previous_state TEXT,
            new_state TEXT,
            reason TEXT NOT NULL DEFAULT '',
            ip_address TEXT NOT NULL DEFAULT '',
            user_agent TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TRIGGER IF NOT EXISTS admin_actions_no_update
            BEFORE UPDATE ON admin_actions
            BEGIN SELECT RAISE(ABORT, 'admin actions are immutable'); END`,
		`CREATE TRIGGER IF NOT EXISTS admin_actions_no_delete
            BEFORE DELETE ON admin_actions
            BEGIN SELECT RAISE(ABORT, 'admin actions are immutable'); END`,

		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_services_category ON services(category, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_helper ON bookings(helper_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_scheduled ON bookings(status, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_booking ON booking_status_history(booking_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_booking ON messages(booking_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_admin_actions_admin ON admin_actions(admin_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_admin_actions_target ON admin_actions(target_type, target_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %q: %w", firstLine(query), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
