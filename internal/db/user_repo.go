package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"plansync/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
const userColumns = `id, name, email, user_type, stored_property_count`

// GetByID retrieves a single user by ID.
// Returns a not-found AppError when no row matches.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)

	var u types.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.UserType, &u.StoredPropertyCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "querying user", err)
	}
	return &u, nil
}

// ListBrokers returns every broker account ordered by creation. Admins are
// excluded: they are not subject to plan counting and never appear in
// reconciliation reports.
func (r *UserRepository) ListBrokers(ctx context.Context) ([]types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_type = $1 ORDER BY created_at`,
		string(types.UserTypeBroker),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "listing brokers", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.UserType, &u.StoredPropertyCount); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "scanning broker row", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "iterating broker rows", err)
	}
	return users, nil
}

// UpdateStoredCount sets the denormalized property counter for one user.
// Called only by the reconciler inside a transaction.
func (r *UserRepository) UpdateStoredCount(ctx context.Context, userID string, count int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET stored_property_count = $2, updated_at = now() WHERE id = $1`,
		userID, count,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "updating stored count", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
