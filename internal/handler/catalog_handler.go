package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"deliverytech-api/internal/model"
	"deliverytech-api/internal/service"
	"deliverytech-api/pkg/apierror"
)

type CatalogHandler struct {
	service *service.CatalogService
}

func NewCatalogHandler(service *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListProducts runs for anonymous callers too.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var restaurantID int64
	if raw := query.Get("restaurant_id"); raw != "" {
		id, err := parseID(raw, "restaurant_id")
		if err != nil {
			writeError(w, err)
			return
		}
		restaurantID = id
	}

	products, meta, err := h.service.ListProducts(r.Context(), model.ProductQuery{
		RestaurantID: restaurantID,
		Page:         parseIntOrDefault(query.Get("page"), 1),
		Limit:        parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, products, &meta)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "product id")
	if err != nil {
		writeError(w, err)
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, product, nil)
}

func (h *CatalogHandler) ListRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants, err := h.service.ListRestaurants(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, restaurants, nil)
}

func (h *CatalogHandler) GetRestaurant(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "restaurant id")
	if err != nil {
		writeError(w, err)
		return
	}

	restaurant, err := h.service.GetRestaurant(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, restaurant, nil)
}

func (h *CatalogHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(r)
	if !ok {
		writeError(w, apierror.Unauthorized())
		return
	}

	orders, err := h.service.ListOrders(r.Context(), *identity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, orders, nil)
}

func (h *CatalogHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(r)
	if !ok {
		writeError(w, apierror.Unauthorized())
		return
	}

	id, err := parseID(chi.URLParam(r, "id"), "order id")
	if err != nil {
		writeError(w, err)
		return
	}

	order, err := h.service.GetOrder(r.Context(), *identity, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, order, nil)
}

func (h *CatalogHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(r)
	if !ok {
		writeError(w, apierror.Unauthorized())
		return
	}

	deliveries, err := h.service.ListDeliveries(r.Context(), *identity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, deliveries, nil)
}
