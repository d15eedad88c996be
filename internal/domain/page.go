package domain

import "strings"

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageQuery is a normalized transaction history query.
type PageQuery struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Normalize clamps paging and whitelists sort columns; the result is safe to
// interpolate into ORDER BY.
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	switch q.SortBy {
	case "amount", "createdAt":
	default:
		q.SortBy = "createdAt"
	}
	if strings.EqualFold(q.SortOrder, "ASC") {
		q.SortOrder = "ASC"
	} else {
		q.SortOrder = "DESC"
	}
	return q
}

func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type PageMeta struct {
	Page            int   `json:"page"`
	Limit           int   `json:"limit"`
	TotalItems      int64 `json:"totalItems"`
	TotalPages      int   `json:"totalPages"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

func NewPageMeta(q PageQuery, total int64) PageMeta {
	pages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return PageMeta{
		Page:            q.Page,
		Limit:           q.Limit,
		TotalItems:      total,
		TotalPages:      pages,
		HasNextPage:     q.Page < pages,
		HasPreviousPage: q.Page > 1,
	}
}
