package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"plansync/internal/types"
)

// PropertyRepository provides data access for the properties table.
// The "counted" predicate -- active AND not soft-deleted -- lives in the SQL
// here and nowhere else, so every caller sees the same definition.
type PropertyRepository struct {
	db DBTX
}

// NewPropertyRepository creates a new PropertyRepository backed by the given
// database connection (pool or transaction).
func NewPropertyRepository(db DBTX) *PropertyRepository {
	return &PropertyRepository{db: db}
}

const propertyColumns = `id, owner_id, title, active, deleted_at, created_at`

// GetByID retrieves a single property by ID. Soft-deleted rows are excluded.
func (r *PropertyRepository) GetByID(ctx context.Context, id string) (*types.Property, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)

	var p types.Property
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Active, &p.DeletedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundProperty, "property not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "querying property", err)
	}
	return &p, nil
}

// CountActive performs the Direct Count of properties that count toward the
// owner's plan usage.
func (r *PropertyRepository) CountActive(ctx context.Context, ownerID string) (int, error) {
	row := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM properties WHERE owner_id = $1 AND active AND deleted_at IS NULL`,
		ownerID,
	)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "counting active properties", err)
	}
	return count, nil
}

// CountTotal counts all non-deleted properties for an owner, active or not.
// Reconciliation reports show it alongside the active count.
func (r *PropertyRepository) CountTotal(ctx context.Context, ownerID string) (int, error) {
	row := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM properties WHERE owner_id = $1 AND deleted_at IS NULL`,
		ownerID,
	)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "counting total properties", err)
	}
	return count, nil
}

// SetActive flips a property's active flag and returns the updated row.
func (r *PropertyRepository) SetActive(ctx context.Context, id string, active bool) (*types.Property, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE properties SET active = $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+propertyColumns,
		id, active,
	)

	var p types.Property
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Active, &p.DeletedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundProperty, "property not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "toggling property", err)
	}
	return &p, nil
}
