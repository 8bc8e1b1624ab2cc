package permission

import (
	"context"
	"database/sql"
)

var _ OwnerResolver = (*PGOwnerResolver)(nil)

// PGOwnerResolver resolves entity ownership from the business tables. Only
// entity types with a known owning-party layout are supported; anything else
// is an unknown entity.
type PGOwnerResolver struct {
	db *sql.DB
}

func NewPGOwnerResolver(db *sql.DB) *PGOwnerResolver {
	return &PGOwnerResolver{db: db}
}

func (r *PGOwnerResolver) Owners(ctx context.Context, entityType, entityID string) ([]string, error) {
	var query string
	switch entityType {
	case "ride":
		query = `select customer_id, driver_id from rides where id=$1`
	case "order":
		query = `select customer_id, restaurant_id from orders where id=$1`
	case "document":
		query = `select owner_id, '' from documents where id=$1`
	default:
		return nil, UnknownEntityError(entityType, entityID)
	}

	var a, b sql.NullString
	if err := r.db.QueryRowContext(ctx, query, entityID).Scan(&a, &b); err != nil {
		if err == sql.ErrNoRows {
			return nil, UnknownEntityError(entityType, entityID)
		}
		return nil, err
	}
	var owners []string
	if a.Valid && a.String != "" {
		owners = append(owners, a.String)
	}
	if b.Valid && b.String != "" {
		owners = append(owners, b.String)
	}
	return owners, nil
}
