package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
)

// ItemRunner processes one identifier to completion.
type ItemRunner interface {
	Run(ctx context.Context, identifier string) domain.Outcome
}

// BatchScheduler runs many items with a bounded number of workers.
type BatchScheduler struct {
	runner    ItemRunner
	logger    zerolog.Logger
	onOutcome func(domain.Outcome)
}

// NewBatchScheduler creates a BatchScheduler.
func NewBatchScheduler(runner ItemRunner, logger zerolog.Logger) *BatchScheduler {
	return &BatchScheduler{runner: runner, logger: logger}
}

// OnOutcome registers fn to be called as each item finishes. Calls are serialized.
func (b *BatchScheduler) OnOutcome(fn func(domain.Outcome)) {
	b.onOutcome = fn
}

// RunBatch attempts every distinct identifier exactly once with at most
// concurrency items in flight and returns one outcome per identifier. Item
// failures are recorded, never returned. Items still queued when ctx ends are
// recorded as cancelled without running.
func (b *BatchScheduler) RunBatch(ctx context.Context, identifiers []string, concurrency int) map[string]domain.Outcome {
	items := dedupe(identifiers)
	results := make(map[string]domain.Outcome, len(items))
	if len(items) == 0 {
		return results
	}

	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	queue := make(chan string, len(items))
	for _, id := range items {
		queue <- id
	}
	close(queue)

	b.logger.Info().Int("items", len(items)).Int("workers", concurrency).Msg("Starting batch")

	var mu sync.Mutex
	record := func(o domain.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		results[o.Identifier] = o
		if b.onOutcome != nil {
			b.onOutcome(o)
		}
	}

	var wg sync.WaitGroup
	for w := 1; w <= concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			logger := b.logger.With().Int("worker", worker).Logger()
			for id := range queue {
				if err := ctx.Err(); err != nil {
					record(domain.Failed("", id, fmt.Errorf("%w: %v", domain.ErrCancelled, err), time.Now().UTC()))
					continue
				}
				logger.Debug().Str("url", id).Msg("Picked item")
				record(b.runOne(ctx, id, logger))
			}
		}(w)
	}
	wg.Wait()

	failed := 0
	for _, o := range results {
		if !o.OK() {
			failed++
		}
	}
	b.logger.Info().Int("succeeded", len(results)-failed).Int("failed", failed).Msg("Batch finished")
	return results
}

func (b *BatchScheduler) runOne(ctx context.Context, id string, logger zerolog.Logger) (outcome domain.Outcome) {
	startedAt := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("url", id).Msg("Item panicked")
			outcome = domain.Failed("", id, fmt.Errorf("panic: %v", r), startedAt)
		}
	}()
	outcome = b.runner.Run(ctx, id)
	// the key must match the queued identifier
	outcome.Identifier = id
	return outcome
}

// dedupe drops blank and repeated identifiers, keeping first occurrences in order.
func dedupe(identifiers []string) []string {
	seen := make(map[string]struct{}, len(identifiers))
	out := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
