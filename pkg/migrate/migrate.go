package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/config"
)

const (
	DefaultDir = "pkg/migrate/migrations"
	// VersionTable keeps goose bookkeeping apart from the allocation tables.
	VersionTable = "dmshub_schema_versions"
)

// ErrSQLiteSchema is returned for goose commands against sqlite. The SQL files
// use postgres types and check constraints; sqlite schemas come from the GORM
// models instead (see MaybeRunDev).
var ErrSQLiteSchema = errors.New("sql migrations target postgres; sqlite schemas are built from models")

func prepare(driver string) error {
	switch driver {
	case "", config.DriverPostgres:
	case config.DriverSQLite:
		return ErrSQLiteSchema
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	goose.SetTableName(VersionTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Run executes a goose command (up, down, status, ...) against db.
func Run(ctx context.Context, db *sql.DB, driver, dir, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if err := prepare(driver); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, driver, dir, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	files, err := ListDir(dir)
	if err != nil {
		return err
	}
	if !hasVersion(files, target) {
		return fmt.Errorf("version %d not found in %s", target, dir)
	}
	if err := prepare(driver); err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func hasVersion(files []File, version int64) bool {
	for _, f := range files {
		if f.Version == version {
			return true
		}
	}
	return false
}
