package domain

import "context"

// PageFetcher retrieves the raw body of one upstream page.
// Implementations report transport problems only; decoding is the caller's concern.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) ([]byte, error)
}
