package gormstore

import (
	"time"

	"gorm.io/gorm"

	"github.com/tienda-delivery/api/internal/platform/pagination"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalisePageSize(size int) int {
	switch {
	case size <= 0:
		return defaultPageSize
	case size > maxPageSize:
		return maxPageSize
	}
	return size
}

// keyset applies a (created_at DESC, id DESC) seek and fetches one extra row to detect a next page.
func keyset(query *gorm.DB, table string, cursor pagination.Cursor, size int) *gorm.DB {
	if !cursor.IsZero() {
		query = query.Where("("+table+".created_at, "+table+".id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	return query.
		Order(table + ".created_at DESC").
		Order(table + ".id DESC").
		Limit(size + 1)
}

// trimPage drops the probe row and returns the token for the following page.
func trimPage[T any](rows []T, size int, position func(T) (time.Time, string)) ([]T, string, error) {
	if len(rows) <= size {
		return rows, "", nil
	}
	rows = rows[:size]
	createdAt, id := position(rows[len(rows)-1])
	token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: createdAt, ID: id})
	if err != nil {
		return nil, "", err
	}
	return rows, token, nil
}
