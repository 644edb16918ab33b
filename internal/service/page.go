package service

import "github.com/dangerclosesec/tenantkit/internal/repository"

// Page is one window of a paginated listing.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func newPage[T any](items []T, total int64, p repository.Page) Page[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: pages,
	}
}

// exportLimit caps the rows a single export may return.
const exportLimit = 10000

// collectAll drains a paginated query up to exportLimit rows.
func collectAll[T any](fetch func(p repository.Page) ([]T, int64, error)) ([]T, error) {
	var out []T
	for page := 1; ; page++ {
		items, total, err := fetch(repository.Page{Page: page, PageSize: repository.MaxPageSize})
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) == 0 || int64(len(out)) >= total || len(out) >= exportLimit {
			break
		}
	}
	if len(out) > exportLimit {
		out = out[:exportLimit]
	}
	return out, nil
}
