package db

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-identity/migrations"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 3)
	for _, name := range files {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestMigrateWrapsGooseError(t *testing.T) {
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		gotDir = dir
		return errors.New("boom")
	}

	err := migrate(context.Background(), nil, migrations.FS)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform/db: migrate")
	assert.Equal(t, ".", gotDir)
}
