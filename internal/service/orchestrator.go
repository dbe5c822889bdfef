package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
	"tubegrab/internal/core/ports"
	"tubegrab/internal/logging"
)

// OrchestratorOptions tunes single-item runs.
type OrchestratorOptions struct {
	// Quality is the video quality hint; empty means highest.
	Quality string
	// Timeout bounds one item; zero means no limit.
	Timeout time.Duration
}

// Orchestrator coordinates the download workflow of one item.
type Orchestrator struct {
	source   ports.MediaSource
	storage  ports.Storage
	acquirer *Acquirer
	merger   *Merger
	opts     OrchestratorOptions
	logger   zerolog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	source ports.MediaSource,
	storage ports.Storage,
	acquirer *Acquirer,
	merger *Merger,
	opts OrchestratorOptions,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		source:   source,
		storage:  storage,
		acquirer: acquirer,
		merger:   merger,
		opts:     opts,
		logger:   logger,
	}
}

// Run downloads, joins and merges one identifier. It never panics on provider
// errors and always returns exactly one outcome.
func (o *Orchestrator) Run(ctx context.Context, identifier string) domain.Outcome {
	jobID := uuid.New().String()
	startedAt := time.Now().UTC()
	logger := logging.ForJob(o.logger, jobID, identifier)

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	fail := func(stage string, err error) domain.Outcome {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, domain.ErrCancelled) {
			err = errors.Join(domain.ErrCancelled, err)
		}
		logger.Error().Err(err).Str("stage", stage).Msg("Job failed")
		return domain.Failed(jobID, identifier, err, startedAt)
	}

	logger.Info().Msg("Starting job")
	if err := ctx.Err(); err != nil {
		return fail("start", err)
	}

	info, err := o.source.Resolve(ctx, identifier)
	if err != nil {
		var re *domain.ResolutionError
		if !errors.As(err, &re) {
			err = &domain.ResolutionError{Identifier: identifier, Err: err}
		}
		return fail("resolve", err)
	}
	logger.Info().Str("title", info.Title).Msg("Resolved video")

	item := domain.NewContentItem(jobID, identifier, info.Title)
	if item.SanitizedTitle == "" && info.ID != "" {
		item = item.WithStem(domain.FileStem("", info.ID))
	}
	stem, err := o.storage.Claim(item)
	if err != nil {
		return fail("claim", err)
	}
	defer o.storage.Release(stem)
	item = item.WithStem(stem)

	// a failed stream stops its sibling through xferCtx
	xferCtx, stopTransfers := context.WithCancel(ctx)
	defer stopTransfers()

	pair := NewPairSync(func() {
		logger.Info().Msg("Both streams finished")
	})
	streams, err := o.acquirer.Acquire(xferCtx, item, o.opts.Quality, pair, logger)
	if err != nil {
		return fail("acquire", err)
	}

	err = pair.Wait()
	if err != nil {
		stopTransfers()
	}
	streams.Wait()
	if err != nil {
		return fail("acquire", err)
	}

	output, err := o.merger.Merge(ctx, item, streams, logger)
	if err != nil {
		return fail("merge", err)
	}

	logger.Info().Str("output", output).Dur("took", time.Since(startedAt)).Msg("Job completed successfully")
	return domain.Succeeded(jobID, identifier, output, startedAt)
}
