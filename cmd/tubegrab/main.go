package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/alexflint/go-arg"

	"tubegrab/internal/api"
	"tubegrab/internal/config"
	"tubegrab/internal/core/domain"
	"tubegrab/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	args, p, err := config.Parse(argv)
	switch {
	case errors.Is(err, arg.ErrHelp):
		p.WriteHelpForSubcommand(stdout, p.SubcommandNames()...)
		return 0
	case err != nil:
		if p != nil {
			p.WriteUsage(stderr)
		}
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}

	cfg, err := args.GlobalArgs.Resolve()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case args.Download != nil:
		return a.download(ctx, stdout, args.Download.URL)
	case args.Batch != nil:
		return a.runBatch(ctx, stdout, args.Batch.Targets)
	case args.Details != nil:
		return a.details(ctx, stdout, args.Details.URL, args.Details.Fields)
	case args.Info != nil:
		return a.info(ctx, stdout, args.Info.URL)
	case args.Channel != nil:
		return a.channel(ctx, stdout, args.Channel.ChannelID)
	case args.Thumbnail != nil:
		return a.thumbnail(ctx, stdout, args.Thumbnail.URL)
	case args.Subtitles != nil:
		return a.subtitles(ctx, stdout, args.Subtitles.URL, args.Subtitles.Lang)
	case args.Serve != nil:
		return a.serve(ctx, args.Serve.Addr)
	}
	return 2
}

func (a *app) download(ctx context.Context, out io.Writer, url string) int {
	outcome := a.orchestrator.Run(ctx, url)
	printSummary(out, outcome)
	if !outcome.OK() {
		return 1
	}
	return 0
}

func (a *app) runBatch(ctx context.Context, out io.Writer, targets []string) int {
	urls, err := config.ExpandTargets(targets)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to read targets")
		return 1
	}
	if len(urls) == 0 {
		a.logger.Warn().Msg("No URLs to download")
		return 0
	}

	a.batch.OnOutcome(func(o domain.Outcome) {
		if o.OK() {
			a.logger.Info().Str("url", o.Identifier).Str("output", o.OutputPath).Msg("Merged")
		}
	})
	results := a.batch.RunBatch(ctx, urls, a.cfg.Concurrency)

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	failed := 0
	for _, id := range ids {
		printSummary(out, results[id])
		if !results[id].OK() {
			failed++
		}
	}
	fmt.Fprintf(out, "\n%d of %d videos merged\n", len(ids)-failed, len(ids))
	if failed > 0 {
		return 1
	}
	return 0
}

func (a *app) details(ctx context.Context, out io.Writer, url string, fields []string) int {
	known, _ := domain.ParseDetailFields(fields)
	details, err := a.catalog.Details(ctx, url, known...)
	if err != nil {
		a.logger.Error().Err(err).Msg("Error fetching video details")
		return 1
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(api.RenderDetails(details, fields)); err != nil {
		a.logger.Error().Err(err).Msg("Failed to write details")
		return 1
	}
	return 0
}

func (a *app) info(ctx context.Context, out io.Writer, url string) int {
	meta, err := a.catalog.VideoMetadata(ctx, url)
	if err != nil {
		a.logger.Error().Err(err).Msg("Error fetching video metadata")
		return 1
	}
	fmt.Fprintf(out, "Title:      %s\n", meta.Title)
	fmt.Fprintf(out, "Duration:   %s\n", meta.Duration)
	fmt.Fprintf(out, "Format:     %s\n", meta.Format)
	fmt.Fprintf(out, "Resolution: %s\n", meta.Resolution)
	return 0
}

func (a *app) channel(ctx context.Context, out io.Writer, channelID string) int {
	info, err := a.catalog.ChannelInfo(ctx, channelID)
	if err != nil {
		a.logger.Error().Err(err).Msg("Error fetching channel info")
		return 1
	}
	fmt.Fprintf(out, "Channel Name: %s\n", info.ChannelName)
	fmt.Fprintf(out, "Description:  %s\n", info.Description)
	return 0
}

func (a *app) thumbnail(ctx context.Context, out io.Writer, url string) int {
	path, err := a.catalog.DownloadThumbnail(ctx, url)
	if errors.Is(err, domain.ErrNoThumbnail) {
		fmt.Fprintln(out, "No thumbnail available for this video.")
		return 1
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Error downloading thumbnail")
		return 1
	}
	fmt.Fprintf(out, "Thumbnail downloaded: %s\n", path)
	return 0
}

func (a *app) subtitles(ctx context.Context, out io.Writer, url, lang string) int {
	path, err := a.catalog.DownloadSubtitles(ctx, url, lang)
	if errors.Is(err, domain.ErrNoSubtitles) {
		fmt.Fprintln(out, "No subtitles available for this video.")
		return 1
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Error downloading subtitles")
		return 1
	}
	fmt.Fprintf(out, "Subtitles downloaded: %s\n", path)
	return 0
}

func (a *app) serve(ctx context.Context, addr string) int {
	if err := api.NewServer(a.catalog, a.logger).ListenAndServe(ctx, addr); err != nil {
		a.logger.Error().Err(err).Msg("Server stopped")
		return 1
	}
	return 0
}

func printSummary(out io.Writer, o domain.Outcome) {
	fmt.Fprintln(out, "\n=== Job Summary ===")
	fmt.Fprintf(out, "Job ID:       %s\n", orDash(o.JobID))
	fmt.Fprintf(out, "URL:          %s\n", o.Identifier)
	fmt.Fprintf(out, "Success:      %t\n", o.OK())
	if o.OK() {
		fmt.Fprintf(out, "Output:       %s\n", o.OutputPath)
	} else {
		fmt.Fprintf(out, "Reason:       %s\n", o.Reason)
	}
	fmt.Fprintf(out, "Completed At: %s\n", o.FinishedAt.Format("2006-01-02 15:04:05 UTC"))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
