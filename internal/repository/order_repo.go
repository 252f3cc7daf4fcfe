package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"deliverytech-api/internal/model"
)

// orderScopeClause restricts orders (alias o) to an OrderScope; zero fields
// are ignored. Deliveries are joined through d.
const orderScopeClause = `($1 = 0 OR o.customer_id = $1)
	AND ($2 = 0 OR o.restaurant_id = $2)
	AND ($3 = 0 OR d.courier_id = $3)`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) List(ctx context.Context, scope model.OrderScope) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, o.customer_id, o.restaurant_id, o.status, o.total_cents, o.created_at
		 FROM orders o
		 LEFT JOIN deliveries d ON d.order_id = o.id
		 WHERE `+orderScopeClause+`
		 ORDER BY o.created_at DESC`,
		scope.CustomerID, scope.RestaurantID, scope.CourierID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.RestaurantID, &o.Status, &o.TotalCents, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// FindByID returns ErrOrderNotFound both for missing orders and for orders
// outside the scope, so callers cannot probe other users' ids.
func (r *OrderRepository) FindByID(ctx context.Context, id int64, scope model.OrderScope) (model.Order, error) {
	var o model.Order
	err := r.pool.QueryRow(ctx,
		`SELECT o.id, o.customer_id, o.restaurant_id, o.status, o.total_cents, o.created_at
		 FROM orders o
		 LEFT JOIN deliveries d ON d.order_id = o.id
		 WHERE `+orderScopeClause+` AND o.id = $4`,
		scope.CustomerID, scope.RestaurantID, scope.CourierID, id).
		Scan(&o.ID, &o.CustomerID, &o.RestaurantID, &o.Status, &o.TotalCents, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, model.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("find order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) ListDeliveries(ctx context.Context, scope model.OrderScope) ([]model.Delivery, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT d.id, d.order_id, d.courier_id, d.status, d.updated_at
		 FROM deliveries d
		 JOIN orders o ON o.id = d.order_id
		 WHERE `+orderScopeClause+`
		 ORDER BY d.updated_at DESC`,
		scope.CustomerID, scope.RestaurantID, scope.CourierID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make([]model.Delivery, 0)
	for rows.Next() {
		var d model.Delivery
		if err := rows.Scan(&d.ID, &d.OrderID, &d.CourierID, &d.Status, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
