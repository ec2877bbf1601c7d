package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query         string
		limit, offset int
	}{
		{"", defaultPageLimit, 0},
		{"limit=25&offset=5", 25, 5},
		{"limit=5000", maxPageLimit, 0},
		{"limit=0", defaultPageLimit, 0},
		{"limit=-1&offset=-5", defaultPageLimit, 0},
		{"limit=abc&offset=xyz", defaultPageLimit, 0},
		{"offset=999999", defaultPageLimit, 999999},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/admin/audit?"+tt.query, nil)
			limit, offset := parsePagination(r)
			assert.Equal(t, tt.limit, limit, "limit")
			assert.Equal(t, tt.offset, offset, "offset")
		})
	}
}

func TestPaginateSlice(t *testing.T) {
	tests := []struct {
		name                 string
		total, limit, offset int
		start, end           int
		more                 bool
	}{
		{"first page", 50, 10, 0, 0, 10, true},
		{"last page partial", 25, 10, 20, 20, 25, false},
		{"exact fit", 10, 10, 0, 0, 10, false},
		{"offset past end", 5, 10, 100, 5, 5, false},
		{"empty", 0, 10, 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, meta := paginateSlice(tt.total, tt.limit, tt.offset)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
			assert.Equal(t, PaginationMeta{TotalCount: tt.total, Limit: tt.limit, Offset: tt.offset, HasMore: tt.more}, meta)
		})
	}
}

func TestPage(t *testing.T) {
	items := make([]int, 120)
	for i := range items {
		items[i] = i
	}

	got, meta := page(httptest.NewRequest("GET", "/admin/audit?limit=25&offset=100", nil), items)
	assert.Len(t, got, 20)
	assert.Equal(t, 100, got[0])
	assert.False(t, meta.HasMore)
	assert.Equal(t, 120, meta.TotalCount)

	r := httptest.NewRequest("GET", "/admin/audit", nil)
	got, meta = page(r, items)
	assert.Len(t, got, defaultPageLimit)
	assert.True(t, meta.HasMore)

	empty, meta := page(r, []string(nil))
	assert.Empty(t, empty)
	assert.Zero(t, meta.TotalCount)
}
