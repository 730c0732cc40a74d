package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPageSize    = 20
	DefaultMaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Params is the page request read from pageSize and pageToken.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// Options bound the page size per listing. Zero values fall back to the package defaults.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

func (o Options) limits() (fallback, ceiling int) {
	ceiling = o.MaxPageSize
	if ceiling <= 0 {
		ceiling = DefaultMaxPageSize
	}
	fallback = o.DefaultPageSize
	if fallback <= 0 {
		fallback = DefaultPageSize
	}
	return min(fallback, ceiling), ceiling
}

// Parse reads the page request. Oversized pages are clamped rather than rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	fallback, ceiling := opts.limits()
	params := Params{PageSize: fallback}

	if raw := strings.TrimSpace(values.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			return Params{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidPageSize, raw)
		case size < 1:
			return Params{}, fmt.Errorf("%w: must be at least 1", ErrInvalidPageSize)
		}
		params.PageSize = min(size, ceiling)
	}

	if raw := strings.TrimSpace(values.Get("pageToken")); raw != "" {
		cursor, err := DecodeToken(raw)
		if err != nil {
			return Params{}, err
		}
		params.PageToken, params.Cursor = raw, cursor
	}
	return params, nil
}
