package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// parsePagination reads the limit and offset query parameters. Missing,
// malformed or non-positive values fall back to the defaults; limit is
// capped at maxPageLimit.
func parsePagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit = positiveInt(q.Get("limit"), defaultPageLimit)
	offset = positiveInt(q.Get("offset"), 0)
	return min(limit, maxPageLimit), offset
}

func positiveInt(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return fallback
}

// paginateSlice returns the [start, end) window of a collection of
// totalCount items. An offset past the end yields an empty window.
func paginateSlice(totalCount, limit, offset int) (start, end int, meta PaginationMeta) {
	start = min(offset, totalCount)
	end = min(start+limit, totalCount)
	meta = PaginationMeta{
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < totalCount,
	}
	return start, end, meta
}

// page applies the request's pagination to items.
func page[T any](r *http.Request, items []T) ([]T, PaginationMeta) {
	limit, offset := parsePagination(r)
	start, end, meta := paginateSlice(len(items), limit, offset)
	return items[start:end], meta
}
