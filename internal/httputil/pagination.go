package httputil

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Page bounds for list endpoints.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

var (
	errInvalidOffset = errors.New("invalid offset parameter: must be a non-negative integer")
	errInvalidLimit  = errors.New("invalid limit parameter: must be between 1 and 100")
)

// ParsePagination reads the offset and limit query parameters. Both are optional;
// zeros are returned alongside any error.
func ParsePagination(c *gin.Context) (offset, limit int, err error) {
	offset, ok := queryInt(c, "offset", 0)
	if !ok || offset < 0 {
		return 0, 0, errInvalidOffset
	}
	limit, ok = queryInt(c, "limit", DefaultPageLimit)
	if !ok || limit < 1 || limit > MaxPageLimit {
		return 0, 0, errInvalidLimit
	}
	return offset, limit, nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw, present := c.GetQuery(key)
	if !present {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

// Paginate returns the page of items selected by offset and limit.
func Paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
