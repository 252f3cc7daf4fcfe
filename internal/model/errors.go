package model

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")

	// Refresh token persistence
	ErrTokenNotFound = errors.New("token not found")

	// Catalog
	ErrProductNotFound    = errors.New("product not found")
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrOrderNotFound      = errors.New("order not found")
)
