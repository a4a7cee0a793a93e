package rotation

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedSource is a window-model candidate source backed by an RSS/Atom feed.
// Feed item ids are derived from GUID hashes, so they carry no ordering:
// dedup for feed routes relies on ledger membership alone, never the cursor.
type FeedSource struct {
	feedURL    string
	lookback   time.Duration
	httpClient *http.Client
	parser     *gofeed.Parser
	extractor  *Extractor // nil when content extraction is disabled
	userAgent  string
}

func NewFeedSource(feedURL string, lookback time.Duration, httpClient *http.Client, extractor *Extractor, userAgent string) *FeedSource {
	return &FeedSource{
		feedURL:    feedURL,
		lookback:   lookback,
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		extractor:  extractor,
		userAgent:  userAgent,
	}
}

func (s *FeedSource) Fetch(ctx context.Context, now time.Time, _ int64) ([]Item, error) {
	data, err := s.fetchFeed(ctx, s.feedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	feed, err := s.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse feed: %v", ErrSourceUnavailable, err)
	}

	horizon := now.Add(-s.lookback)

	items := make([]Item, 0, len(feed.Items))
	for _, feedItem := range feed.Items {
		if feedItem.PublishedParsed == nil {
			slog.Debug("Feed item without publication date skipped", "feed", s.feedURL, "title", feedItem.Title)
			continue
		}
		if feedItem.PublishedParsed.Before(horizon) {
			continue
		}

		items = append(items, s.normalizeItem(ctx, feedItem))
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].PostedAt.Equal(items[j].PostedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].PostedAt.Before(items[j].PostedAt)
	})

	return items, nil
}

func (s *FeedSource) normalizeItem(ctx context.Context, feedItem *gofeed.Item) Item {
	guid := feedItem.GUID
	if guid == "" {
		guid = feedItem.Link
	}

	text := feedItem.Title
	body := feedItem.Description

	if s.extractor != nil && feedItem.Link != "" {
		if excerpt, err := s.extractExcerpt(ctx, feedItem.Link); err != nil {
			slog.Debug("Content extraction failed, falling back to description", "link", feedItem.Link, "error", err)
		} else if excerpt != "" {
			body = excerpt
		}
	}

	if body != "" {
		text = text + "\n\n" + body
	}

	return Item{
		ID:       feedItemID(guid),
		PostedAt: *feedItem.PublishedParsed,
		Kind:     ItemText,
		Text:     text,
		Link:     feedItem.Link,
		Origin:   OriginFeed,
	}
}

func (s *FeedSource) extractExcerpt(ctx context.Context, link string) (string, error) {
	data, err := s.fetchFeed(ctx, link)
	if err != nil {
		return "", err
	}
	return s.extractor.Run(data)
}

func (s *FeedSource) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// feedItemID maps a GUID to a stable positive int64.
func feedItemID(guid string) int64 {
	h := fnv.New64a()
	h.Write([]byte(guid))
	return int64(h.Sum64() >> 1)
}
