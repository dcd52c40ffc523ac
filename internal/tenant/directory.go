package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknown indicates the directory has no such tenant.
var ErrUnknown = errors.New("tenant: unknown")

// Info is display metadata about a tenant. It is informational only and never
// takes part in authorization decisions.
type Info struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Directory resolves tenant metadata.
type Directory interface {
	ResolveTenant(ctx context.Context, id ID) (Info, error)
}

// PGDirectory reads tenants from PostgreSQL.
type PGDirectory struct {
	pool *pgxpool.Pool
}

// NewPGDirectory constructs a PostgreSQL backed directory.
func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

// ResolveTenant returns metadata for the tenant or ErrUnknown.
func (d *PGDirectory) ResolveTenant(ctx context.Context, id ID) (Info, error) {
	if !id.Valid() {
		return Info{}, ErrUnknown
	}
	info := Info{ID: id}
	err := d.pool.QueryRow(ctx, `SELECT name, status FROM tenants WHERE id = $1`, int64(id)).Scan(&info.Name, &info.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Info{}, ErrUnknown
		}
		return Info{}, fmt.Errorf("tenant: resolve %d: %w", id, err)
	}
	return info, nil
}

var _ Directory = (*PGDirectory)(nil)
