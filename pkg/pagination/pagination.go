package pagination

import (
	"strconv"
	"strings"
)

// Defaults applied when options are missing or invalid.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Options is the raw paging request as received from a caller.
type Options struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Params is the normalised paging window.
type Params struct {
	Page      int
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// Paginator carries configured limits.
type Paginator struct {
	DefaultLimit int
	MaxLimit     int
}

// Default uses the package defaults.
var Default = Paginator{DefaultLimit: DefaultLimit, MaxLimit: MaxLimit}

// Calculate normalises opts: page and limit become positive integers, limit is
// clamped to MaxLimit when one is set, and offset = (page-1)*limit.
func (p Paginator) Calculate(opts Options) Params {
	defaultLimit := p.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}

	page := opts.Page
	if page < 1 {
		page = DefaultPage
	}
	limit := opts.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if p.MaxLimit > 0 && limit > p.MaxLimit {
		limit = p.MaxLimit
	}

	return Params{
		Page:      page,
		Limit:     limit,
		Offset:    (page - 1) * limit,
		SortBy:    strings.TrimSpace(opts.SortBy),
		SortOrder: strings.ToLower(strings.TrimSpace(opts.SortOrder)),
	}
}

// Calculate applies the package defaults.
func Calculate(opts Options) Params {
	return Default.Calculate(opts)
}

// ParseOptions builds Options from query-string values. Unparseable numbers
// are treated as missing.
func ParseOptions(page, limit, sortBy, sortOrder string) Options {
	opts := Options{SortBy: sortBy, SortOrder: sortOrder}
	if n, err := strconv.Atoi(strings.TrimSpace(page)); err == nil {
		opts.Page = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(limit)); err == nil {
		opts.Limit = n
	}
	return opts
}
