package normalize

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortOrder is asc or desc.
type SortOrder string

// Sort orders.
const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Default client-side table page sizes.
const (
	DefaultTablePageSize     = 5
	DefaultAssistantPageSize = 10
)

// ParseSortOrder defaults to desc.
func ParseSortOrder(raw string) SortOrder {
	if SortOrder(strings.ToLower(strings.TrimSpace(raw))) == Asc {
		return Asc
	}
	return Desc
}

// DefaultColumn picks the sort column used when none is requested: the first of
// columns, which for a decoded Table is the first key in backend order.
func DefaultColumn(columns []string) string {
	if len(columns) == 0 {
		return ""
	}
	return columns[0]
}

// SortRows returns a sorted copy of rows. Two numbers compare numerically; everything
// else compares as text using English collation. Callers holding a Table pass
// DefaultColumn(table.Columns) to sort by the first column in backend key order. Bare
// rows carry no key order, so an empty column falls back to the first key alphabetically.
func SortRows(rows []Row, column string, order SortOrder) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	if column == "" {
		column = DefaultColumn(Columns(rows))
	}
	if column == "" {
		return out
	}

	coll := collate.New(language.English)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i][column], out[j][column]
		var cmp int
		if isNumber(a) && isNumber(b) {
			x, y := number(a), number(b)
			switch {
			case x < y:
				cmp = -1
			case x > y:
				cmp = 1
			}
		} else {
			cmp = coll.CompareString(text(a), text(b))
		}
		if order == Asc {
			return cmp < 0
		}
		return cmp > 0
	})
	return out
}

// PageRows slices one page of rows. page is 1-based and clamped to the valid range.
func PageRows(rows []Row, page, size int) ([]Row, Pagination) {
	if size <= 0 {
		size = DefaultTablePageSize
	}
	total := len(rows)
	pages := (total + size - 1) / size
	if page < 1 {
		page = 1
	}
	if pages > 0 && page > pages {
		page = pages
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return rows[start:end], Pagination{Page: page, PageSize: size, TotalItems: total, TotalPages: pages}
}

func text(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}
