// Package pagination normalizes the page/limit query parameters shared by
// every list endpoint.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// MaxLimit caps the page size a single request may ask for.
const MaxLimit = 100

const (
	defaultPage  = 1
	defaultLimit = 20
)

// Params is the sanitized paging window for a list query.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse reads page and limit from the query string. Missing or out-of-range
// values fall back to page 1 with 20 rows; limit never exceeds MaxLimit.
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))

	if page < defaultPage {
		page = defaultPage
	}
	switch {
	case limit < 1:
		limit = defaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}
