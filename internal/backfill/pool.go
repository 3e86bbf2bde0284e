package backfill

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runPool feeds the indexes [0, n) through a fixed set of workers. Each index
// is handed to exactly one worker. The first error returned by do stops the
// admission of queued indexes; runPool returns it once every worker has exited.
func runPool(ctx context.Context, workers, n int, do func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan int)

	g.Go(func() error {
		defer close(queue)
		for i := 0; i < n; i++ {
			select {
			case queue <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < min(workers, n); w++ {
		g.Go(func() error {
			for i := range queue {
				if err := do(gctx, i); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}
