package batch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/inodb/gvf2vcf/internal/gvf"
)

// WorkItem holds one chromosome batch ready for normalization.
type WorkItem struct {
	Seq   int
	Batch *Batch
}

// WorkResult holds the normalized records of one batch.
type WorkResult struct {
	Seq     int
	Chrom   string
	Records []*gvf.Record
	Err     error
}

// ParallelProcess normalizes batches using a pool of workers.
// Results arrive on the returned channel in completion order; use
// OrderedCollect to consume them by sequence number.
//
// The first failed batch cancels the pool: batches not yet started are
// skipped, so no further references are loaded. Cancelling ctx has the same
// effect. Batches already in flight finish normally.
func (p *Processor) ParallelProcess(ctx context.Context, items <-chan WorkItem, workers int) <-chan WorkResult {
	workers = max(workers, 1)
	ctx, cancel := context.WithCancel(ctx)

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				if ctx.Err() != nil {
					p.logger.Debug("skipping chromosome after failure",
						zap.String("chrom", item.Batch.Chrom))
					continue
				}
				recs, err := p.Process(item.Batch)
				if err != nil {
					cancel()
				}
				results <- WorkResult{
					Seq:     item.Seq,
					Chrom:   item.Batch.Chrom,
					Records: recs,
					Err:     err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		cancel()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order, holding
// early arrivals until their predecessors are in. Once fn returns an error no
// further results are passed to it, but the channel is still read to the end
// so that senders never block. Sequence numbers that never arrive leave their
// successors unreported.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	var (
		held = make(map[int]WorkResult)
		next int
		err  error
	)
	for r := range results {
		if err != nil {
			continue
		}
		held[r.Seq] = r
		for err == nil {
			ready, ok := held[next]
			if !ok {
				break
			}
			delete(held, next)
			next++
			err = fn(ready)
		}
	}
	return err
}
