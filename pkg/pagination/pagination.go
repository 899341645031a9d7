// Package pagination turns page/limit query parameters into an offset window.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a clamped, 1-based page window.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// New clamps page and limit: page below 1 becomes 1, a non-positive limit becomes
// DefaultLimit and anything above MaxLimit is capped.
func New(page, limit int) Params {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Parse reads ?page= and ?limit= (or ?per_page=). Unparsable values fall back to the defaults.
func Parse(c *gin.Context) Params {
	limit := intQuery(c, "limit")
	if limit == 0 {
		limit = intQuery(c, "per_page")
	}
	return New(intQuery(c, "page"), limit)
}

// Pages is the number of pages needed for total rows.
func (p Params) Pages(total int64) int64 {
	if p.Limit <= 0 || total <= 0 {
		return 0
	}
	return (total + int64(p.Limit) - 1) / int64(p.Limit)
}

func intQuery(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
