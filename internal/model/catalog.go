package model

import "time"

type Restaurant struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Active   bool   `json:"active"`
}

type Product struct {
	ID           int64  `json:"id"`
	RestaurantID int64  `json:"restaurant_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	PriceCents   int64  `json:"price_cents"`
	Available    bool   `json:"available"`
}

type Order struct {
	ID           int64     `json:"id"`
	CustomerID   int64     `json:"customer_id"`
	RestaurantID int64     `json:"restaurant_id"`
	Status       string    `json:"status"`
	TotalCents   int64     `json:"total_cents"`
	CreatedAt    time.Time `json:"created_at"`
}

type Delivery struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	CourierID *int64    `json:"courier_id,omitempty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderScope narrows order and delivery queries to what an identity may see.
// Zero values mean "no restriction".
type OrderScope struct {
	CustomerID   int64
	RestaurantID int64
	CourierID    int64
}

type ProductQuery struct {
	RestaurantID int64
	Page         int
	Limit        int
}
