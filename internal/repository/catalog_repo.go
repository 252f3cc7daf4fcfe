package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"deliverytech-api/internal/model"
)

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) List(ctx context.Context, query model.ProductQuery) ([]model.Product, model.Meta, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE available AND ($1 = 0 OR restaurant_id = $1)`,
		query.RestaurantID).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count products: %w", err)
	}

	meta := model.NewMeta(query.Page, query.Limit, total)
	rows, err := r.pool.Query(ctx,
		`SELECT id, restaurant_id, name, description, price_cents, available
		 FROM products
		 WHERE available AND ($1 = 0 OR restaurant_id = $1)
		 ORDER BY name
		 LIMIT $2 OFFSET $3`,
		query.RestaurantID, meta.Limit, meta.Offset())
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]model.Product, 0)
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.RestaurantID, &p.Name, &p.Description, &p.PriceCents, &p.Available); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, meta, rows.Err()
}

func (r *ProductRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.pool.QueryRow(ctx,
		`SELECT id, restaurant_id, name, description, price_cents, available
		 FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.RestaurantID, &p.Name, &p.Description, &p.PriceCents, &p.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Product{}, model.ErrProductNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("find product: %w", err)
	}
	return p, nil
}

type RestaurantRepository struct {
	pool *pgxpool.Pool
}

func NewRestaurantRepository(pool *pgxpool.Pool) *RestaurantRepository {
	return &RestaurantRepository{pool: pool}
}

func (r *RestaurantRepository) List(ctx context.Context) ([]model.Restaurant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, category, active FROM restaurants WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	restaurants := make([]model.Restaurant, 0)
	for rows.Next() {
		var rest model.Restaurant
		if err := rows.Scan(&rest.ID, &rest.Name, &rest.Category, &rest.Active); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		restaurants = append(restaurants, rest)
	}
	return restaurants, rows.Err()
}

func (r *RestaurantRepository) FindByID(ctx context.Context, id int64) (model.Restaurant, error) {
	var rest model.Restaurant
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, category, active FROM restaurants WHERE id = $1`, id).
		Scan(&rest.ID, &rest.Name, &rest.Category, &rest.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Restaurant{}, model.ErrRestaurantNotFound
	}
	if err != nil {
		return model.Restaurant{}, fmt.Errorf("find restaurant: %w", err)
	}
	return rest, nil
}
