package listutil

import (
	"net/url"
	"slices"
	"strings"
)

// Params carries the search and sort parameters of a list request.
type Params struct {
	Search string // free-text, case-insensitive substring
	Sort   string // column name, empty for natural order
	Dir    string // "asc" or "desc"
}

// Desc reports whether rows are sorted in descending order.
func (p Params) Desc() bool { return p.Dir == "desc" }

// Parse extracts q, sort and dir from URL query values.
// PRE: sortable lists the allowed sort columns
// POST: Sort is empty or one of sortable; Dir is always "asc" or "desc"
func Parse(q url.Values, sortable []string) Params {
	p := Params{
		Search: strings.TrimSpace(q.Get("q")),
		Sort:   q.Get("sort"),
		Dir:    q.Get("dir"),
	}
	if !slices.Contains(sortable, p.Sort) {
		p.Sort = ""
	}
	if p.Dir != "asc" && p.Dir != "desc" {
		p.Dir = "asc"
	}
	return p
}

// Filter keeps the items whose text contains search, ignoring case.
// PRE: text returns the searchable strings of an item
// POST: returns items unchanged (same order) when search is empty
func Filter[T any](items []T, search string, text func(T) []string) []T {
	if search == "" {
		return items
	}
	needle := strings.ToLower(search)
	out := make([]T, 0, len(items))
	for _, it := range items {
		for _, s := range text(it) {
			if strings.Contains(strings.ToLower(s), needle) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// Sort orders items in place by cmp, reversed when desc. Equal items keep
// their relative order.
func Sort[T any](items []T, desc bool, cmp func(a, b T) int) {
	slices.SortStableFunc(items, func(a, b T) int {
		if desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
}
