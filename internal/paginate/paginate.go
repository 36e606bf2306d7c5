// Package paginate walks cursor-linked result pages.
package paginate

import (
	"context"
	"errors"
	"fmt"
)

// PageFunc fetches the page at url and returns its records and the next page link ("" when
// there is none).
type PageFunc[T any] func(ctx context.Context, url string) (items []T, next string, err error)

type Options struct {
	// MaxPages stops the walk after this many pages. Zero means no limit.
	MaxPages int
}

// ErrMaxPages is returned with the collected records when Options.MaxPages cut the walk short.
var ErrMaxPages = errors.New("paginate: page limit reached")

// Collect follows next links from first until a page has no records or no next link. When a
// page fails, the records gathered from the earlier pages are returned together with the error.
func Collect[T any](ctx context.Context, first string, fetchPage PageFunc[T], opts Options) ([]T, error) {
	var out []T
	seen := make(map[string]struct{})
	url := first
	for page := 1; url != ""; page++ {
		if opts.MaxPages > 0 && page > opts.MaxPages {
			return out, ErrMaxPages
		}
		if _, ok := seen[url]; ok {
			// Server handed back a link we already followed.
			return out, nil
		}
		seen[url] = struct{}{}

		if err := ctx.Err(); err != nil {
			return out, err
		}
		items, next, err := fetchPage(ctx, url)
		if err != nil {
			return out, fmt.Errorf("page %d: %w", page, err)
		}
		if len(items) == 0 {
			break
		}
		out = append(out, items...)
		url = next
	}
	return out, nil
}
