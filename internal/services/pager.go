package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/subfeed/internal/shared"
)

// Page is one response of a paged listing call.
type Page[T any] struct {
	Items     []T
	NextToken string
}

// PageFunc fetches the page addressed by token; the first page has an empty token.
type PageFunc[T any] func(ctx context.Context, token string) (Page[T], error)

// Paginate follows continuation tokens until a page has none and returns every item in page order.
func Paginate[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	return PaginateUntil(ctx, fetch, nil)
}

// PaginateUntil is [Paginate] with an early stop: done is checked against the accumulated
// items after each page that still has a continuation token.
//
// On error it returns the items gathered before the failing page together with the error.
// A token seen on an earlier page fails with [shared.ErrPagination] unless done already holds,
// since the next page would not be fetched anyway.
func PaginateUntil[T any](ctx context.Context, fetch PageFunc[T], done func([]T) bool) ([]T, error) {
	var items []T
	seen := make(map[string]struct{})
	token := ""

	for {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		page, err := fetch(ctx, token)
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)

		if page.NextToken == "" {
			return items, nil
		}
		if done != nil && done(items) {
			return items, nil
		}
		if _, ok := seen[page.NextToken]; ok || page.NextToken == token {
			return items, fmt.Errorf("%w: %q", shared.ErrPagination, page.NextToken)
		}
		seen[page.NextToken] = struct{}{}
		token = page.NextToken
	}
}
