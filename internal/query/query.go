// Package query translates list request parameters into a store-neutral
// filter, sort and limit specification.
package query

import (
	"net/url"
	"strconv"

	"github.com/ippclub/repo-catalog/internal/apperr"
)

// AllCategories is the category value that disables the category filter
const AllCategories = "All"

// Params are the raw list parameters as received from the client
type Params struct {
	SearchQuery      string
	SortBy           string
	FilterCategory   string
	ShowTopPicksOnly string
	Limit            Limit
}

// ParseParams reads list parameters from URL query values
func ParseParams(values url.Values) (Params, error) {
	p := Params{
		SearchQuery:      values.Get("searchQuery"),
		SortBy:           values.Get("sortBy"),
		FilterCategory:   values.Get("filterCategory"),
		ShowTopPicksOnly: values.Get("showTopPicksOnly"),
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Params{}, apperr.Validation("limit must be a non-negative integer, got %q", raw)
		}
		p.Limit = LimitOf(n)
	}

	return p, nil
}

// Limit is an optional cap on the number of returned records
type Limit struct {
	n   int
	set bool
}

// NoLimit is the absent limit
var NoLimit = Limit{}

// LimitOf returns a limit of n records. Zero means no cap.
func LimitOf(n int) Limit {
	return Limit{n: n, set: true}
}

// Requested reports whether the client asked for a limit and its value
func (l Limit) Requested() (int, bool) {
	return l.n, l.set
}

// Cap returns the effective cap, false when the result is uncapped
func (l Limit) Cap() (int, bool) {
	if !l.set || l.n == 0 {
		return 0, false
	}
	return l.n, true
}

// Spec is a composed list query
type Spec struct {
	Filter Filter
	Sort   Sort
	Limit  Limit
}

// Compose turns list parameters into a query spec
func Compose(p Params) Spec {
	var b Builder
	if p.FilterCategory != "" && p.FilterCategory != AllCategories {
		b.Category(p.FilterCategory)
	}
	if p.ShowTopPicksOnly == "true" {
		b.TopPick(true)
	}
	if p.SearchQuery != "" {
		b.Search(p.SearchQuery)
	}

	return Spec{
		Filter: b.Build(),
		Sort:   SortFor(p.SortBy),
		Limit:  p.Limit,
	}
}
