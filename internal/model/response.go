package model

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// APIResponse is the envelope of every JSON answer. Exactly one of Data and
// Error is set; Meta accompanies paginated lists (audit trail, products).
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

// APIError is the wire form of a failure. Authentication failures on
// protected routes all share one Code and Message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewMeta clamps page and limit and derives the page count.
func NewMeta(page int, limit int, total int) Meta {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return Meta{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// Offset is the number of rows skipped before this page.
func (m Meta) Offset() int {
	return (m.Page - 1) * m.Limit
}
