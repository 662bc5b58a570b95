package utils

import (
	"errors"
	"math"
	"strconv"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

var ErrInvalidPagination = errors.New("page must be >= 1 and limit between 1 and 500")

// PaginationParams holds pagination request parameters
type PaginationParams struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// PaginationMeta holds pagination response metadata
type PaginationMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int   `json:"totalPages"`
}

// ParsePagination reads raw page and limit query values. Empty values take
// page 1 and DefaultPageLimit; anything out of range is rejected rather
// than clamped.
func ParsePagination(rawPage, rawLimit string) (PaginationParams, error) {
	p := PaginationParams{Page: 1, Limit: DefaultPageLimit}

	if rawPage != "" {
		n, err := strconv.Atoi(rawPage)
		if err != nil || n < 1 {
			return PaginationParams{}, ErrInvalidPagination
		}
		p.Page = n
	}
	if rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n < 1 || n > MaxPageLimit {
			return PaginationParams{}, ErrInvalidPagination
		}
		p.Limit = n
	}
	return p, nil
}

// Offset returns the SQL offset
func (p PaginationParams) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// CalculateMeta generates pagination metadata
func CalculateMeta(totalCount int64, p PaginationParams) PaginationMeta {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = int(math.Ceil(float64(totalCount) / float64(p.Limit)))
	}
	return PaginationMeta{
		Page:       p.Page,
		Limit:      p.Limit,
		TotalCount: totalCount,
		TotalPages: totalPages,
	}
}
