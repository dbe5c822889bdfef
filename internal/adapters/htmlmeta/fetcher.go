// Package htmlmeta reads video details out of the <meta> tags of a watch page.
package htmlmeta

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"tubegrab/internal/core/domain"
)

// PageGetter downloads a whole page.
type PageGetter interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DefaultChannelBaseURL is prefixed to channel IDs by FetchChannel.
const DefaultChannelBaseURL = "https://www.youtube.com/"

// Fetcher implements ports.MetadataFetcher by scraping meta tags.
type Fetcher struct {
	pages          PageGetter
	limiter        *rate.Limiter
	channelBaseURL string
	logger         zerolog.Logger
}

// NewFetcher creates a Fetcher that makes at most rps page requests per second.
// rps <= 0 disables the limit.
func NewFetcher(pages PageGetter, rps float64, logger zerolog.Logger) *Fetcher {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Fetcher{
		pages:          pages,
		limiter:        rate.NewLimiter(limit, 1),
		channelBaseURL: DefaultChannelBaseURL,
		logger:         logger.With().Str("fetcher", "htmlmeta").Logger(),
	}
}

// SetChannelBaseURL changes the page FetchChannel reads.
func (f *Fetcher) SetChannelBaseURL(u string) {
	f.channelBaseURL = u
}

// fieldKeys maps each field to the attribute/value pair of its meta tag.
var fieldKeys = map[domain.DetailField][2]string{
	domain.FieldTitle:       {"name", "title"},
	domain.FieldDescription: {"name", "description"},
	domain.FieldUploadDate:  {"itemprop", "uploadDate"},
	domain.FieldGenre:       {"itemprop", "genre"},
	domain.FieldViews:       {"itemprop", "interactionCount"},
}

// Fetch returns the requested fields of identifier's page.
func (f *Fetcher) Fetch(ctx context.Context, identifier string, fields ...domain.DetailField) (domain.Details, error) {
	tags, err := f.page(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = domain.AllDetailFields
	}
	details := make(domain.Details, len(fields))
	for _, field := range fields {
		key := fieldKeys[field]
		details[field] = tags[key[0]+"="+key[1]]
	}
	return details, nil
}

// FetchChannel returns the og:title and og:description of a channel page.
func (f *Fetcher) FetchChannel(ctx context.Context, channelID string) (domain.ChannelInfo, error) {
	tags, err := f.page(ctx, f.channelBaseURL+strings.TrimPrefix(channelID, "/"))
	if err != nil {
		return domain.ChannelInfo{}, err
	}
	return domain.ChannelInfo{
		ChannelName: tags["property=og:title"],
		Description: tags["property=og:description"],
	}, nil
}

func (f *Fetcher) page(ctx context.Context, url string) (map[string]string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	f.logger.Debug().Str("url", url).Msg("Fetching page")
	data, err := f.pages.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %s: %w", url, err)
	}
	return metaTags(data), nil
}

// metaTags collects the content of every <meta> tag keyed by "attr=value"
// for the name, property and itemprop attributes. The first occurrence wins.
func metaTags(page []byte) map[string]string {
	tags := make(map[string]string)
	tokenizer := html.NewTokenizer(bytes.NewReader(page))

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if string(tn) != "meta" || !hasAttr {
				continue
			}
			var keys []string
			var content string
			for {
				k, v, more := tokenizer.TagAttr()
				switch string(k) {
				case "name", "property", "itemprop":
					keys = append(keys, string(k)+"="+string(v))
				case "content":
					content = string(v)
				}
				if !more {
					break
				}
			}
			for _, key := range keys {
				if _, seen := tags[key]; !seen {
					tags[key] = content
				}
			}
		}
	}
}
