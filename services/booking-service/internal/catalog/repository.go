package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/shopbook/libs/db"
)

// Repository reads the shop_services table. The catalog is maintained elsewhere; this side only
// looks services up.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) FindServiceByName(ctx context.Context, name string) (Service, error) {
	var svc Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, price::text
		FROM shop_services
		WHERE lower(name) = lower($1) AND active
	`, name).Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Service{}, fmt.Errorf("%w: %q", ErrServiceNotFound, name)
		}
		return Service{}, fmt.Errorf("find service: %w", err)
	}
	return svc, nil
}
