package pagination

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 20
	MaxSize     = 100

	// MaxPage keeps Page*Size within int32 so offsets never wrap.
	MaxPage = math.MaxInt32 / MaxSize
)

// Order is one "field,direction" sort clause.
type Order struct {
	Field string
	Desc  bool
}

// Params holds zero-based page parameters extracted from a request.
type Params struct {
	Page int
	Size int
	Sort []Order
}

// FromContext extracts page, size and sort from the query string.
// Out-of-range values fall back to defaults rather than failing the request.
func FromContext(c echo.Context) Params {
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 0 {
		page = 0
	}
	if page > MaxPage {
		page = MaxPage
	}

	return Params{Page: page, Size: size, Sort: ParseSort(c.QueryParams()["sort"])}
}

// ParseSort accepts values such as "name", "name,desc" or "code,asc;name".
// Unknown directions are treated as ascending.
func ParseSort(values []string) []Order {
	var orders []Order
	for _, v := range values {
		for _, clause := range strings.Split(v, ";") {
			field, dir, _ := strings.Cut(strings.TrimSpace(clause), ",")
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			orders = append(orders, Order{
				Field: field,
				Desc:  strings.EqualFold(strings.TrimSpace(dir), "desc"),
			})
		}
	}
	return orders
}

// Offset is the number of rows skipped before this page. Page and Size are
// clamped to their maximums first.
func (p Params) Offset() int {
	return min(max(p.Page, 0), MaxPage) * min(max(p.Size, 0), MaxSize)
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Size, p.Offset())
}

// OrderBy renders an ORDER BY clause. columns maps API field names to SQL
// columns; fields not present in columns are dropped. fallback is used when
// nothing valid remains and is always appended as a tiebreaker.
func (p Params) OrderBy(columns map[string]string, fallback string) string {
	var parts []string
	used := make(map[string]bool)
	for _, o := range p.Sort {
		col, ok := columns[o.Field]
		if !ok || used[col] {
			continue
		}
		used[col] = true
		if o.Desc {
			parts = append(parts, col+" DESC")
		} else {
			parts = append(parts, col+" ASC")
		}
	}
	if !used[fallback] {
		parts = append(parts, fallback+" ASC")
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Size < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Page > 0
}

// TotalPages returns the number of pages needed to hold total items.
func (p Params) TotalPages(total int) int {
	if p.Size <= 0 || total <= 0 {
		return 0
	}
	return (total + p.Size - 1) / p.Size
}

// Response wraps a paginated API response.
type Response[T any] struct {
	Items      []T  `json:"items"`
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Size       int  `json:"size"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

func NewResponse[T any](items []T, total int, p Params) *Response[T] {
	if items == nil {
		items = []T{}
	}
	return &Response[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Size:       p.Size,
		TotalPages: p.TotalPages(total),
		HasMore:    p.HasNext(total),
	}
}
