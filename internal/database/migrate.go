// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus はマイグレーション適用後のスキーマの状態。
type MigrationStatus struct {
	// Version は適用済みの最新バージョン。未適用の場合は0。
	Version uint
	// Dirty は途中で失敗したマイグレーションが残っている場合にtrue。
	Dirty bool
	// Changed は今回の実行で1件以上適用した場合にtrue。
	Changed bool
}

// migrateLogger はmigrateの進捗をslogに流す。
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool { return false }

func newSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	return src, nil
}

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。loggerがnilの場合は進捗を出力しない。
func NewMigrator(databaseURL string, logger *slog.Logger) (*migrate.Migrate, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	if logger != nil {
		m.Log = migrateLogger{logger: logger.With(slog.String("component", "migrate"))}
	}

	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、適用後の状態を返す。
// すでに最新の場合はChanged=falseでエラーなしに返る。
// 前回の失敗でdirtyが残っている場合は適用せずにエラーを返す。
func RunMigrations(databaseURL string, logger *slog.Logger) (MigrationStatus, error) {
	m, err := NewMigrator(databaseURL, logger)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer m.Close()

	before, dirty, err := currentVersion(m)
	if err != nil {
		return MigrationStatus{}, err
	}
	if dirty {
		return MigrationStatus{Version: before, Dirty: true},
			fmt.Errorf("schema is dirty at version %d; fix it manually before migrating", before)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, dirty, _ := currentVersion(m)
		return MigrationStatus{Version: version, Dirty: dirty}, fmt.Errorf("failed to run migrations: %w", err)
	}

	after, dirty, err := currentVersion(m)
	if err != nil {
		return MigrationStatus{}, err
	}
	return MigrationStatus{Version: after, Dirty: dirty, Changed: after != before}, nil
}

func currentVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// EmbeddedVersions は同梱しているマイグレーションのバージョンを昇順で返す。
func EmbeddedVersions() ([]uint, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return nil, fmt.Errorf("failed to read first migration: %w", err)
	}
	versions := []uint{version}
	for {
		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return versions, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read migration after %d: %w", version, err)
		}
		versions = append(versions, next)
		version = next
	}
}
