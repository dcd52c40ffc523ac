package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded goose migrations through the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	return migrate(ctx, sqlDB, migrations)
}

func migrate(ctx context.Context, sqlDB *sql.DB, migrations fs.FS) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("platform/db: goose dialect: %w", err)
	}
	if err := gooseUp(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("platform/db: migrate: %w", err)
	}
	return nil
}
