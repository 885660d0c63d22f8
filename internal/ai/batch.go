package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

// BatchEmbedder splits large inputs into fixed-size batches and embeds them
// concurrently on a dedicated pool. Results keep input order.
type BatchEmbedder struct {
	next      IEmbedder
	batchSize int
	pool      *ants.Pool
}

func NewBatchEmbedder(next IEmbedder, batchSize, workers int) (*BatchEmbedder, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	if workers <= 0 {
		workers = 2
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &BatchEmbedder{next: next, batchSize: batchSize, pool: pool}, nil
}

func (b *BatchEmbedder) ModelName() string {
	return b.next.ModelName()
}

func (b *BatchEmbedder) Release() {
	b.pool.Release()
}

func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	if len(texts) <= b.batchSize {
		return b.next.Embed(ctx, texts)
	}
	count := (len(texts) + b.batchSize - 1) / b.batchSize
	results := make([]*EmbedResult, count)
	errs := make([]error, count)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		start := i * b.batchSize
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		idx := i
		batch := texts[start:end]
		wg.Add(1)
		if err := b.pool.Submit(func() {
			defer wg.Done()
			results[idx], errs[idx] = b.next.Embed(ctx, batch)
		}); err != nil {
			wg.Done()
			errs[idx] = appErr.ProviderUnavailable("embedding pool rejected batch", true, err)
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	out := &EmbedResult{Vectors: make([][]float32, 0, len(texts)), Model: results[0].Model}
	for i, res := range results {
		if res.Dims != results[0].Dims {
			return nil, appErr.ProviderUnavailable(
				fmt.Sprintf("batch %d returned %d dims, expected %d", i, res.Dims, results[0].Dims), false, nil)
		}
		out.Vectors = append(out.Vectors, res.Vectors...)
	}
	out.Dims = results[0].Dims
	return out, nil
}
