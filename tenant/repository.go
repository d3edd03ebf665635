package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the tenant does not exist.
	ErrNotFound = errors.New("tenant: not found")
)

// Repository handles data access for connected accounts.
type Repository interface {
	ListActive(ctx context.Context) ([]Tenant, error)
	GetByID(ctx context.Context, tenantID string) (Tenant, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed tenant repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListActive returns all tenants currently being polled, oldest first.
func (r *PGRepository) ListActive(ctx context.Context) ([]Tenant, error) {
	const selectSQL = `
		SELECT id, company_name, owner_email, active, connected_at, disconnected_at
		FROM tenants
		WHERE active
		ORDER BY connected_at
	`
	rows, err := r.pool.Query(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("tenant: list active: %w", err)
	}
	defer rows.Close()

	tenants := []Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("tenant: scan: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetByID retrieves a tenant by identifier.
func (r *PGRepository) GetByID(ctx context.Context, tenantID string) (Tenant, error) {
	const selectSQL = `
		SELECT id, company_name, owner_email, active, connected_at, disconnected_at
		FROM tenants
		WHERE id = $1
	`
	t, err := scanTenant(r.pool.QueryRow(ctx, selectSQL, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("tenant: get by id: %w", err)
	}
	return t, nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	return t, row.Scan(
		&t.ID,
		&t.CompanyName,
		&t.OwnerEmail,
		&t.Active,
		&t.ConnectedAt,
		&t.DisconnectedAt,
	)
}
