package avpipe

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunAll runs independent pipelines side by side. The first failure cancels
// the others. Pipelines are not closed.
func RunAll(ctx context.Context, pipelines ...*Pipeline) error {
	if len(pipelines) == 0 {
		return ErrNoStreams
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pipelines {
		g.Go(func() error {
			if err := p.Run(gctx); err != nil {
				return fmt.Errorf("pipeline %s: %w", p.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
