package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
)

const (
	DefaultBaseURL = "https://api.apify.com/v2"
	// streamers/youtube-scraper
	youtubeActorID = "h7sDV53CddomktSi5"
)

// Fetcher implements ports.MetadataFetcher using the Apify REST API.
type Fetcher struct {
	apiToken     string
	baseURL      string
	pollInterval time.Duration
	client       *http.Client
	logger       zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseURL points the fetcher at another API root.
func WithBaseURL(u string) Option { return func(f *Fetcher) { f.baseURL = u } }

// WithPollInterval changes how often a run's status is polled.
func WithPollInterval(d time.Duration) Option { return func(f *Fetcher) { f.pollInterval = d } }

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// NewFetcher creates a new Fetcher. The token usually comes from APIFY_API_TOKEN.
func NewFetcher(token string, logger zerolog.Logger, opts ...Option) (*Fetcher, error) {
	if token == "" {
		return nil, fmt.Errorf("APIFY_API_TOKEN environment variable not set")
	}
	f := &Fetcher{
		apiToken:     token,
		baseURL:      DefaultBaseURL,
		pollInterval: 3 * time.Second,
		client:       &http.Client{Timeout: 5 * time.Minute},
		logger:       logger.With().Str("fetcher", "apify").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// scrapedItem is one dataset row of the YouTube actor.
type scrapedItem struct {
	Title              string      `json:"title"`
	Text               string      `json:"text"`
	Date               string      `json:"date"`
	Genre              string      `json:"genre"`
	ViewCount          json.Number `json:"viewCount"`
	ChannelName        string      `json:"channelName"`
	ChannelDescription string      `json:"channelDescription"`
}

// Fetch runs the actor against identifier and maps the first result.
func (f *Fetcher) Fetch(ctx context.Context, identifier string, fields ...domain.DetailField) (domain.Details, error) {
	item, err := f.scrape(ctx, identifier)
	if err != nil {
		return nil, err
	}
	all := domain.Details{
		domain.FieldTitle:       item.Title,
		domain.FieldDescription: item.Text,
		domain.FieldUploadDate:  item.Date,
		domain.FieldGenre:       item.Genre,
		domain.FieldViews:       item.ViewCount.String(),
	}
	return all.Select(fields), nil
}

// FetchChannel runs the actor against the channel page.
func (f *Fetcher) FetchChannel(ctx context.Context, channelID string) (domain.ChannelInfo, error) {
	item, err := f.scrape(ctx, "https://www.youtube.com/"+channelID)
	if err != nil {
		return domain.ChannelInfo{}, err
	}
	return domain.ChannelInfo{ChannelName: item.ChannelName, Description: item.ChannelDescription}, nil
}

func (f *Fetcher) scrape(ctx context.Context, pageURL string) (*scrapedItem, error) {
	runID, err := f.startActorRun(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to start actor run: %w", err)
	}
	f.logger.Debug().Str("run", runID).Str("url", pageURL).Msg("Actor run started")

	raw, err := f.waitAndGetResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	var items []scrapedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no results returned from scraper")
	}
	return &items[0], nil
}

func (f *Fetcher) startActorRun(ctx context.Context, pageURL string) (string, error) {
	url := fmt.Sprintf("%s/acts/%s/runs?token=%s", f.baseURL, youtubeActorID, f.apiToken)

	input := map[string]interface{}{
		"startUrls":  []map[string]string{{"url": pageURL}},
		"maxResults": 1,
	}
	body, _ := json.Marshal(input)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to start actor: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Data.ID, nil
}

func (f *Fetcher) waitAndGetResults(ctx context.Context, runID string) ([]byte, error) {
	statusURL := fmt.Sprintf("%s/actor-runs/%s?token=%s", f.baseURL, runID, f.apiToken)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.pollInterval):
		}

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}

		var status struct {
			Data struct {
				Status           string `json:"status"`
				DefaultDatasetID string `json:"defaultDatasetId"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body.Close()

		switch status.Data.Status {
		case "SUCCEEDED":
			return f.getDatasetItems(ctx, status.Data.DefaultDatasetID)
		case "FAILED", "ABORTED", "TIMED-OUT":
			return nil, fmt.Errorf("actor run failed with status: %s", status.Data.Status)
		}
		f.logger.Debug().Str("run", runID).Str("status", status.Data.Status).Msg("Actor still running")
	}
}

func (f *Fetcher) getDatasetItems(ctx context.Context, datasetID string) ([]byte, error) {
	url := fmt.Sprintf("%s/datasets/%s/items?token=%s", f.baseURL, datasetID, f.apiToken)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset request failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
