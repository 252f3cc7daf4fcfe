package service

import (
	"context"

	"deliverytech-api/internal/model"
)

type ProductStore interface {
	List(ctx context.Context, query model.ProductQuery) ([]model.Product, model.Meta, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
}

type RestaurantStore interface {
	List(ctx context.Context) ([]model.Restaurant, error)
	FindByID(ctx context.Context, id int64) (model.Restaurant, error)
}

type OrderStore interface {
	List(ctx context.Context, scope model.OrderScope) ([]model.Order, error)
	FindByID(ctx context.Context, id int64, scope model.OrderScope) (model.Order, error)
	ListDeliveries(ctx context.Context, scope model.OrderScope) ([]model.Delivery, error)
}

// CatalogService is the read-only boundary to business entities. Order and
// delivery reads are narrowed to what the identity may see.
type CatalogService struct {
	products    ProductStore
	restaurants RestaurantStore
	orders      OrderStore
}

func NewCatalogService(products ProductStore, restaurants RestaurantStore, orders OrderStore) *CatalogService {
	return &CatalogService{products: products, restaurants: restaurants, orders: orders}
}

func (s *CatalogService) ListProducts(ctx context.Context, query model.ProductQuery) ([]model.Product, model.Meta, error) {
	return s.products.List(ctx, query)
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (model.Product, error) {
	return s.products.FindByID(ctx, id)
}

func (s *CatalogService) ListRestaurants(ctx context.Context) ([]model.Restaurant, error) {
	return s.restaurants.List(ctx)
}

func (s *CatalogService) GetRestaurant(ctx context.Context, id int64) (model.Restaurant, error) {
	return s.restaurants.FindByID(ctx, id)
}

func (s *CatalogService) ListOrders(ctx context.Context, identity model.Identity) ([]model.Order, error) {
	scope, ok := ScopeFor(identity)
	if !ok {
		return []model.Order{}, nil
	}
	return s.orders.List(ctx, scope)
}

func (s *CatalogService) GetOrder(ctx context.Context, identity model.Identity, id int64) (model.Order, error) {
	scope, ok := ScopeFor(identity)
	if !ok {
		return model.Order{}, model.ErrOrderNotFound
	}
	return s.orders.FindByID(ctx, id, scope)
}

func (s *CatalogService) ListDeliveries(ctx context.Context, identity model.Identity) ([]model.Delivery, error) {
	scope, ok := ScopeFor(identity)
	if !ok {
		return []model.Delivery{}, nil
	}
	return s.orders.ListDeliveries(ctx, scope)
}

// ScopeFor maps an identity to the orders it may read. ok is false when the
// identity may read nothing, e.g. a RESTAURANTE without a restaurant.
func ScopeFor(identity model.Identity) (model.OrderScope, bool) {
	switch identity.Role {
	case model.RoleAdmin:
		return model.OrderScope{}, true
	case model.RoleCliente:
		return model.OrderScope{CustomerID: identity.UserID}, true
	case model.RoleRestaurante:
		if identity.RestaurantID == nil {
			return model.OrderScope{}, false
		}
		return model.OrderScope{RestaurantID: *identity.RestaurantID}, true
	case model.RoleEntregador:
		return model.OrderScope{CourierID: identity.UserID}, true
	default:
		return model.OrderScope{}, false
	}
}
