package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"pktracker/internal/logging"
	"pktracker/internal/model"
)

// Options selects the backing store.
type Options struct {
	Driver string // sqlite (default) or postgres
	DSN    string
	Log    zerolog.Logger
}

// NewDB opens the store and runs migrations.
func NewDB(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "", "sqlite":
		dsn := opts.DSN
		if dsn == "" {
			dsn = "pktracker.db"
		}
		if err := ensureDirForSQLite(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(sqliteDSN(dsn))
	case "postgres":
		if opts.DSN == "" {
			return nil, errors.New("postgres dsn is required")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.NewGormLogger(opts.Log),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sql db: %w", err)
		}
		// One writer at a time; also keeps an in-memory database on a single connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	if err := db.AutoMigrate(&model.Task{}, &model.CheckinEvent{}, &model.BonusEntry{}, &model.Admin{}, &model.Member{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return db, nil
}

// sqliteDSN makes transactions take the write lock at BEGIN so a count
// followed by an insert cannot interleave with another writer.
func sqliteDSN(dsn string) string {
	params := []string{"_txlock=immediate", "_busy_timeout=5000", "_foreign_keys=1"}
	var missing []string
	for _, p := range params {
		key := strings.SplitN(p, "=", 2)[0]
		if !strings.Contains(dsn, key+"=") {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if dsn == ":memory:" {
		dsn = "file::memory:"
	}
	return dsn + sep + strings.Join(missing, "&")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	// Ignore DSNs with explicit mode=memory or network.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
