// internal/repository/repository.go
package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based pagination window.
type Page struct {
	Page     int
	PageSize int
}

// Normalize clamps the window to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Sort is a whitelisted ORDER BY clause.
type Sort struct {
	Field string
	Desc  bool
}

func (s Sort) clause(allowed map[string]string, fallback string) string {
	col, ok := allowed[s.Field]
	if !ok {
		return fallback
	}
	if s.Desc {
		return col + " DESC"
	}
	return col + " ASC"
}

// likePattern escapes LIKE metacharacters and wraps the term for a
// contains match.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func paginate(p Page) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique violation,
// optionally restricted to the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) && constraint == "" {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
