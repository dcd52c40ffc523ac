package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/db"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
)

// Repository is the storage port for users. Every read and write is filtered
// by tenant; rows of another tenant are indistinguishable from missing rows.
type Repository interface {
	Load(ctx context.Context, tenantID tenant.ID, id int64) (*User, error)
	FindByEmail(ctx context.Context, tenantID tenant.ID, email string) (*User, error)
	// Save inserts unsaved users, assigning ID, or updates saved ones guarded
	// by Version. Role references are rewritten in the same transaction.
	Save(ctx context.Context, u *User) error
	List(ctx context.Context, tenantID tenant.ID, filter ListFilter) ([]*User, int, error)
}

// ListFilter narrows user listings.
type ListFilter struct {
	Enabled *bool
	Limit   int
	Offset  int
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `u.id, u.tenant_id, u.first_name, u.last_name, u.email, u.credential_secret,
	u.enabled, u.account_non_expired, u.account_non_locked, u.credentials_non_expired,
	u.version, u.credentials_updated_at, u.account_expires_at, u.created_at, u.updated_at,
	COALESCE(array_agg(r.role_id ORDER BY r.role_id) FILTER (WHERE r.role_id IS NOT NULL), '{}')`

const userFrom = ` FROM users u LEFT JOIN user_roles r ON r.user_id = u.id`

// Load fetches a user by id within the tenant.
func (r *PGRepository) Load(ctx context.Context, tenantID tenant.ID, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+userFrom+
		` WHERE u.tenant_id = $1 AND u.id = $2 GROUP BY u.id`, int64(tenantID), id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: load: %w", err)
	}
	return u, nil
}

// FindByEmail fetches a user by login handle within the tenant.
func (r *PGRepository) FindByEmail(ctx context.Context, tenantID tenant.ID, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+userFrom+
		` WHERE u.tenant_id = $1 AND u.email = $2 GROUP BY u.id`, int64(tenantID), NormalizeEmail(email))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: find by email: %w", err)
	}
	return u, nil
}

// List returns a page of users and the total count for the tenant.
func (r *PGRepository) List(ctx context.Context, tenantID tenant.ID, filter ListFilter) ([]*User, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+`, COUNT(*) OVER()`+userFrom+`
		WHERE u.tenant_id = $1 AND ($2::boolean IS NULL OR u.enabled = $2)
		GROUP BY u.id ORDER BY u.id LIMIT $3 OFFSET $4`,
		int64(tenantID), filter.Enabled, limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var (
		out   []*User
		total int
	)
	for rows.Next() {
		u, err := scanUser(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("users: list scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	return out, total, nil
}

// Save persists u. On insert it assigns ID; on update it bumps Version.
func (r *PGRepository) Save(ctx context.Context, u *User) error {
	if u == nil || !u.TenantID().Valid() {
		return fmt.Errorf("%w: tenant required", ErrInvalidUser)
	}
	if err := u.Validate(); err != nil {
		return err
	}
	var (
		id        = u.ID
		version   int64
		createdAt time.Time
		updatedAt time.Time
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if u.Persisted() {
			version, updatedAt, err = r.update(ctx, tx, u)
			createdAt = u.CreatedAt
		} else {
			id, version, createdAt, updatedAt, err = r.insert(ctx, tx, u)
		}
		if err != nil {
			return err
		}
		return replaceRoles(ctx, tx, id, u.RoleIDs())
	})
	if err != nil {
		return translateWriteError(err)
	}
	u.ID = id
	u.Version = version
	u.CreatedAt = createdAt
	u.UpdatedAt = updatedAt
	return nil
}

func (r *PGRepository) insert(ctx context.Context, tx pgx.Tx, u *User) (int64, int64, time.Time, time.Time, error) {
	credentialsAt := u.CredentialsUpdatedAt
	if credentialsAt.IsZero() {
		credentialsAt = time.Now().UTC()
	}
	var (
		id, version          int64
		createdAt, updatedAt time.Time
	)
	err := tx.QueryRow(ctx, `INSERT INTO users (tenant_id, first_name, last_name, email, credential_secret,
			enabled, account_non_expired, account_non_locked, credentials_non_expired,
			credentials_updated_at, account_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, version, created_at, updated_at`,
		int64(u.TenantID()), u.FirstName, u.LastName, u.Email, u.CredentialSecret,
		u.Enabled, u.AccountNonExpired, u.AccountNonLocked, u.CredentialsNonExpired,
		credentialsAt, u.AccountExpiresAt,
	).Scan(&id, &version, &createdAt, &updatedAt)
	if err != nil {
		return 0, 0, time.Time{}, time.Time{}, err
	}
	u.CredentialsUpdatedAt = credentialsAt
	return id, version, createdAt, updatedAt, nil
}

func (r *PGRepository) update(ctx context.Context, tx pgx.Tx, u *User) (int64, time.Time, error) {
	var (
		version   int64
		updatedAt time.Time
	)
	err := tx.QueryRow(ctx, `UPDATE users SET first_name = $4, last_name = $5, email = $6,
			credential_secret = $7, enabled = $8, account_non_expired = $9, account_non_locked = $10,
			credentials_non_expired = $11, credentials_updated_at = $12, account_expires_at = $13,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND version = $3
		RETURNING version, updated_at`,
		u.ID, int64(u.TenantID()), u.Version,
		u.FirstName, u.LastName, u.Email, u.CredentialSecret,
		u.Enabled, u.AccountNonExpired, u.AccountNonLocked, u.CredentialsNonExpired,
		u.CredentialsUpdatedAt, u.AccountExpiresAt,
	).Scan(&version, &updatedAt)
	if err == nil {
		return version, updatedAt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, time.Time{}, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND tenant_id = $2)`,
		u.ID, int64(u.TenantID())).Scan(&exists); err != nil {
		return 0, time.Time{}, err
	}
	if exists {
		return 0, time.Time{}, ErrConcurrentModification
	}
	return 0, time.Time{}, ErrNotFound
}

func replaceRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) SELECT $1, unnest($2::bigint[])`, userID, roleIDs)
	return err
}

// ExpireStaleCredentials marks credentials expired for every tenant where the
// secret is older than cutoff. It returns the number of users changed.
func (r *PGRepository) ExpireStaleCredentials(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET credentials_non_expired = FALSE,
			version = version + 1, updated_at = NOW()
		WHERE credentials_non_expired AND credentials_updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("users: expire credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireLapsedAccounts marks accounts expired once account_expires_at passed.
func (r *PGRepository) ExpireLapsedAccounts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET account_non_expired = FALSE,
			version = version + 1, updated_at = NOW()
		WHERE account_non_expired AND account_expires_at IS NOT NULL AND account_expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("users: expire accounts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row, extra ...any) (*User, error) {
	var (
		u        User
		tenantID int64
		roleIDs  []int64
	)
	dest := []any{
		&u.ID, &tenantID, &u.FirstName, &u.LastName, &u.Email, &u.CredentialSecret,
		&u.Enabled, &u.AccountNonExpired, &u.AccountNonLocked, &u.CredentialsNonExpired,
		&u.Version, &u.CredentialsUpdatedAt, &u.AccountExpiresAt, &u.CreatedAt, &u.UpdatedAt,
		&roleIDs,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return restore(tenant.ID(tenantID), u, roleIDs), nil
}

func translateWriteError(err error) error {
	if errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrNotFound) {
		return err
	}
	switch {
	case errors.Is(err, db.ErrUniqueViolation):
		return ErrEmailTaken
	case errors.Is(err, db.ErrSerialization):
		return ErrConcurrentModification
	}
	return fmt.Errorf("users: save: %w", err)
}

var _ Repository = (*PGRepository)(nil)
