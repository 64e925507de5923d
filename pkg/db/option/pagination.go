package option

import (
	"strconv"

	"github.com/smallbiznis/dormhub/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

type Option interface {
	Apply(*gorm.DB) *gorm.DB
}

type paginate struct {
	afterID int64
	limit   int
}

// ApplyPagination pages by descending id. Invalid tokens restart from the first page.
func ApplyPagination(page pagination.Pagination) Option {
	size := NormalizePageSize(page.PageSize)
	p := paginate{limit: size + 1}
	if page.PageToken != "" {
		if cursor, err := pagination.DecodeCursor(page.PageToken); err == nil {
			if id, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil {
				p.afterID = id
			}
		}
	}
	return p
}

func (p paginate) Apply(stmt *gorm.DB) *gorm.DB {
	if p.afterID > 0 {
		stmt = stmt.Where("id < ?", p.afterID)
	}
	return stmt.Order("id desc").Limit(p.limit)
}

func NormalizePageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}
