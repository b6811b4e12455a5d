package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Noop implements crawler.Fetcher but always fails, for deployments where headless
// rendering is disabled. Sources that need rendering then yield zero records.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns a fetch failure.
func (Noop) Fetch(_ context.Context, source crawler.Source, _ int) (crawler.Page, error) {
	return crawler.Page{}, fmt.Errorf("%w: headless rendering disabled for %s", crawler.ErrFetchFailure, source.Tag)
}
