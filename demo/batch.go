package demo

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// Loader returns the bytes of the demo called name.
type Loader func(ctx context.Context, name string) ([]byte, error)

// BatchResult is the outcome of one demo in a batch.
type BatchResult struct {
	Output *Output
	Err    error
}

// ParseBatch loads and parses demos concurrently, at most limit at a time.
// A demo that fails to load or parse is reported in its result and does not
// stop the others; only cancellation of ctx ends the batch early.
func (p *Parser) ParseBatch(ctx context.Context, names []string, load Loader, limit int) (*xsync.MapOf[string, BatchResult], error) {
	results := xsync.NewMapOf[string, BatchResult]()

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := load(ctx, name)
			if err != nil {
				results.Store(name, BatchResult{Err: fmt.Errorf("load %s: %w", name, err)})
				return nil
			}
			out, err := p.Parse(ctx, data)
			results.Store(name, BatchResult{Output: out, Err: err})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
