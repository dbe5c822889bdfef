// Package config loads settings from .env, the environment and the command line.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/dannav/hhmmss"
	"github.com/joho/godotenv"
	"github.com/xhit/go-str2duration/v2"
)

// GlobalArgs are accepted by every subcommand. Each flag falls back to a TUBEGRAB_* variable.
type GlobalArgs struct {
	OutputDir     string `arg:"-o,--output-dir,env:TUBEGRAB_OUTPUT_DIR" default:"." help:"directory for downloaded and merged files"`
	Concurrency   int    `arg:"-c,--concurrency,env:TUBEGRAB_CONCURRENCY" default:"3" help:"videos downloaded at the same time in batch mode"`
	Quality       string `arg:"-q,--quality,env:TUBEGRAB_QUALITY" default:"highest" help:"video quality: highest, lowest or a label like 720p"`
	Source        string `arg:"--source,env:TUBEGRAB_SOURCE" default:"auto" help:"media source: auto, youtube or ytdlp"`
	Muxer         string `arg:"--muxer,env:TUBEGRAB_MUXER" default:"auto" help:"mux backend: auto, ffmpeg or native"`
	FFmpegPath    string `arg:"--ffmpeg-path,env:TUBEGRAB_FFMPEG" default:"ffmpeg" help:"ffmpeg binary"`
	YtDlpPath     string `arg:"--ytdlp-path,env:TUBEGRAB_YTDLP" help:"yt-dlp binary (default: yt-dlp from PATH)"`
	Collision     string `arg:"--collision,env:TUBEGRAB_COLLISION" default:"overwrite" help:"existing output names: overwrite, fail or suffix"`
	Timeout       string `arg:"--timeout,env:TUBEGRAB_TIMEOUT" help:"per-video time limit, e.g. 30m, 1h30m, 1d or 01:30:00"`
	Progress      string `arg:"--progress,env:TUBEGRAB_PROGRESS" default:"auto" help:"progress output: auto, line, bar or none"`
	AudioProgress bool   `arg:"--audio-progress,env:TUBEGRAB_AUDIO_PROGRESS" help:"also report audio stream progress"`
	Metadata      string `arg:"--metadata,env:TUBEGRAB_METADATA" default:"html" help:"details fetcher: html or apify"`
	ApifyToken    string `arg:"--apify-token,env:APIFY_API_TOKEN" help:"Apify API token for --metadata apify"`
	LogLevel      string `arg:"--log-level,env:TUBEGRAB_LOG_LEVEL" default:"info" help:"trace, debug, info, warn or error"`
	LogFormat     string `arg:"--log-format,env:TUBEGRAB_LOG_FORMAT" default:"console" help:"console or json"`
}

type DownloadCmd struct {
	URL string `arg:"positional,required" help:"video URL"`
}

type BatchCmd struct {
	Targets []string `arg:"positional,required" help:"video URLs or .txt files with one URL per line"`
}

type DetailsCmd struct {
	URL    string   `arg:"positional,required" help:"video URL"`
	Fields []string `arg:"-f,--field,separate" help:"field to show (title, description, uploadDate, genre, views); repeatable"`
}

type URLCmd struct {
	URL string `arg:"positional,required" help:"video URL"`
}

type ChannelCmd struct {
	ChannelID string `arg:"positional,required" help:"channel ID or @handle"`
}

type SubtitlesCmd struct {
	URL  string `arg:"positional,required" help:"video URL"`
	Lang string `arg:"-l,--lang" default:"en" help:"subtitle language code"`
}

type ServeCmd struct {
	Addr string `arg:"--addr,env:TUBEGRAB_ADDR" default:":3000" help:"listen address"`
}

// Args is the full command line.
type Args struct {
	GlobalArgs
	Download  *DownloadCmd  `arg:"subcommand:download" help:"download one video and merge its streams"`
	Batch     *BatchCmd     `arg:"subcommand:batch" help:"download many videos concurrently"`
	Details   *DetailsCmd   `arg:"subcommand:details" help:"print scraped page details"`
	Info      *URLCmd       `arg:"subcommand:info" help:"print title, duration and format"`
	Channel   *ChannelCmd   `arg:"subcommand:channel" help:"print channel name and description"`
	Thumbnail *URLCmd       `arg:"subcommand:thumbnail" help:"download the largest thumbnail"`
	Subtitles *SubtitlesCmd `arg:"subcommand:subtitles" help:"download WebVTT subtitles"`
	Serve     *ServeCmd     `arg:"subcommand:serve" help:"serve the details HTTP API"`
}

// Description is shown at the top of --help.
func (Args) Description() string {
	return "tubegrab downloads video and audio streams in parallel and merges them into MP4 files.\n"
}

// LoadEnv seeds the environment from .env when the file exists.
func LoadEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Parse parses argv (without the program name).
func Parse(argv []string) (*Args, *arg.Parser, error) {
	var args Args
	p, err := arg.NewParser(arg.Config{Program: "tubegrab"}, &args)
	if err != nil {
		return nil, nil, err
	}
	if err := p.Parse(argv); err != nil {
		return &args, p, err
	}
	if p.Subcommand() == nil {
		return &args, p, errors.New("a subcommand is required")
	}
	return &args, p, nil
}

// Config holds validated global settings.
type Config struct {
	OutputDir     string
	Concurrency   int
	Quality       string
	Source        string
	Muxer         string
	FFmpegPath    string
	YtDlpPath     string
	Collision     string
	Timeout       time.Duration
	Progress      string
	AudioProgress bool
	Metadata      string
	ApifyToken    string
	LogLevel      string
	LogFormat     string
}

// Resolve validates g and converts it to a Config.
func (g GlobalArgs) Resolve() (*Config, error) {
	timeout, err := ParseDuration(g.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid --timeout: %w", err)
	}
	cfg := &Config{
		OutputDir:     g.OutputDir,
		Concurrency:   g.Concurrency,
		Quality:       strings.ToLower(strings.TrimSpace(g.Quality)),
		Source:        g.Source,
		Muxer:         g.Muxer,
		FFmpegPath:    g.FFmpegPath,
		YtDlpPath:     g.YtDlpPath,
		Collision:     g.Collision,
		Timeout:       timeout,
		Progress:      g.Progress,
		AudioProgress: g.AudioProgress,
		Metadata:      g.Metadata,
		ApifyToken:    g.ApifyToken,
		LogLevel:      g.LogLevel,
		LogFormat:     g.LogFormat,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate raises concurrency to at least 1 and rejects unknown choices.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Quality == "" {
		c.Quality = "highest"
	}

	choices := []struct {
		name  string
		value *string
		valid []string
	}{
		{"source", &c.Source, []string{"auto", "youtube", "ytdlp"}},
		{"muxer", &c.Muxer, []string{"auto", "ffmpeg", "native"}},
		{"collision", &c.Collision, []string{"overwrite", "fail", "suffix"}},
		{"progress", &c.Progress, []string{"auto", "line", "bar", "none"}},
		{"metadata", &c.Metadata, []string{"html", "apify"}},
		{"log-format", &c.LogFormat, []string{"console", "json"}},
	}
	for _, ch := range choices {
		if *ch.value == "" {
			*ch.value = ch.valid[0]
			continue
		}
		if !contains(ch.valid, *ch.value) {
			return fmt.Errorf("invalid --%s %q (want %s)", ch.name, *ch.value, strings.Join(ch.valid, ", "))
		}
	}

	if c.Metadata == "apify" && c.ApifyToken == "" {
		return errors.New("--metadata apify needs APIFY_API_TOKEN")
	}
	return nil
}

// ParseDuration accepts Go durations with day and week units ("1d12h") or clock
// notation ("01:30:00"). An empty string is zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, ":") {
		return hhmmss.Parse(s)
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// ExpandTargets replaces every .txt argument with the URLs listed in it, one per
// line. Blank lines and lines starting with # are skipped.
func ExpandTargets(targets []string) ([]string, error) {
	var out []string
	for _, t := range targets {
		if !strings.HasSuffix(strings.ToLower(t), ".txt") {
			out = append(out, t)
			continue
		}
		lines, err := readTxtFile(t)
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	return out, nil
}

func readTxtFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
