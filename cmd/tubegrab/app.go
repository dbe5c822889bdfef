package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"tubegrab/internal/adapters/apify"
	"tubegrab/internal/adapters/downloader"
	"tubegrab/internal/adapters/ffmpeg"
	"tubegrab/internal/adapters/htmlmeta"
	"tubegrab/internal/adapters/localstorage"
	"tubegrab/internal/adapters/mp4remux"
	"tubegrab/internal/adapters/youtube"
	"tubegrab/internal/adapters/ytdlp"
	"tubegrab/internal/config"
	"tubegrab/internal/core/ports"
	"tubegrab/internal/progress"
	"tubegrab/internal/service"
)

// progressInterval bounds redraws of the line renderer.
const progressInterval = 100 * time.Millisecond

// app holds the wired services for one process.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	storage      *localstorage.LocalStorage
	orchestrator *service.Orchestrator
	batch        *service.BatchScheduler
	catalog      *service.Catalog
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	policy, err := localstorage.ParseCollisionPolicy(cfg.Collision)
	if err != nil {
		return nil, err
	}
	storage := localstorage.NewLocalStorage(cfg.OutputDir, policy)
	if err := storage.Init(); err != nil {
		return nil, err
	}

	dl := downloader.NewHTTPDownloader(nil)
	source, err := service.NewRouter(
		youtube.NewProvider(0, logger),
		ytdlp.NewYtDlpSource(cfg.YtDlpPath, dl, logger),
		cfg.Source,
	)
	if err != nil {
		return nil, err
	}

	fetcher, err := newFetcher(cfg, dl, logger)
	if err != nil {
		return nil, err
	}

	backend := newMuxBackend(cfg, logger)
	container := ""
	if backend.Name() == "native" {
		// the native muxer only copies MP4 tracks
		container = "mp4"
	}

	sink, err := progress.New(cfg.Progress, os.Stderr, progressInterval)
	if err != nil {
		return nil, err
	}

	acquirer := service.NewAcquirer(source, storage, sink, service.AcquirerOptions{
		ReportAudioProgress: cfg.AudioProgress,
		Container:           container,
	})
	merger := service.NewMerger(storage, backend)
	orchestrator := service.NewOrchestrator(source, storage, acquirer, merger, service.OrchestratorOptions{
		Quality: cfg.Quality,
		Timeout: cfg.Timeout,
	}, logger)

	logger.Debug().
		Str("source", cfg.Source).
		Str("muxer", merger.Backend()).
		Str("output_dir", cfg.OutputDir).
		Msg("Services ready")

	return &app{
		cfg:          cfg,
		logger:       logger,
		storage:      storage,
		orchestrator: orchestrator,
		batch:        service.NewBatchScheduler(orchestrator, logger),
		catalog:      service.NewCatalog(source, fetcher, dl, storage, logger),
	}, nil
}

func newFetcher(cfg *config.Config, dl *downloader.HTTPDownloader, logger zerolog.Logger) (ports.MetadataFetcher, error) {
	if cfg.Metadata == "apify" {
		return apify.NewFetcher(cfg.ApifyToken, logger)
	}
	return htmlmeta.NewFetcher(dl, 2, logger), nil
}

// newMuxBackend picks ffmpeg when it is installed, unless a backend is forced.
func newMuxBackend(cfg *config.Config, logger zerolog.Logger) ports.MuxBackend {
	switch cfg.Muxer {
	case "ffmpeg":
		return ffmpeg.NewMuxer(cfg.FFmpegPath, logger)
	case "native":
		return mp4remux.NewMuxer(logger)
	}
	if ffmpeg.Available(cfg.FFmpegPath) {
		return ffmpeg.NewMuxer(cfg.FFmpegPath, logger)
	}
	logger.Warn().Str("ffmpeg", cfg.FFmpegPath).Msg("ffmpeg not found, using the native MP4 muxer")
	return mp4remux.NewMuxer(logger)
}
