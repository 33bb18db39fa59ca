// Package trends discovers candidate keywords from trend feeds and saves the new ones as topics.
package trends

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"blogwire/internal/core"

	"github.com/mmcdole/gofeed"
)

// Query selects one trend listing.
type Query struct {
	Geo      string
	Category string
}

// Source is the narrow contract of a trend service.
type Source interface {
	Fetch(ctx context.Context, q Query) ([]core.DiscoveredTopic, error)
}

// GoogleTrendsSource reads the daily trending searches RSS feed.
type GoogleTrendsSource struct {
	feedURL string
	parser  *gofeed.Parser
}

// NewGoogleTrendsSource creates a source for feedURL. A zero timeout keeps the
// http.Client default.
func NewGoogleTrendsSource(feedURL string, timeout time.Duration) *GoogleTrendsSource {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	p.UserAgent = "blogwire/1.0"
	return &GoogleTrendsSource{feedURL: feedURL, parser: p}
}

// Fetch returns the trending searches for q.Geo. Search volume comes from
// ht:approx_traffic ("200,000+"); trend score is relative to the largest volume in
// the listing, or rank based when no volume is published.
func (s *GoogleTrendsSource) Fetch(ctx context.Context, q Query) ([]core.DiscoveredTopic, error) {
	u, err := url.Parse(s.feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid trends feed url: %w", err)
	}
	if q.Geo != "" {
		params := u.Query()
		params.Set("geo", q.Geo)
		u.RawQuery = params.Encode()
	}

	feed, err := s.parser.ParseURLWithContext(u.String(), ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch trends for %q: %w: %w", q.Geo, core.ErrTransport, err)
	}

	topics := make([]core.DiscoveredTopic, 0, len(feed.Items))
	var maxVolume int64
	for _, item := range feed.Items {
		keyword := strings.TrimSpace(item.Title)
		if keyword == "" {
			continue
		}
		volume := parseTraffic(extensionValue(item, "ht", "approx_traffic"))
		if volume > maxVolume {
			maxVolume = volume
		}
		topics = append(topics, core.DiscoveredTopic{
			Keyword:      keyword,
			SearchVolume: volume,
			Category:     q.Category,
		})
	}

	n := len(topics)
	for i := range topics {
		if maxVolume > 0 {
			topics[i].TrendScore = 100 * float64(topics[i].SearchVolume) / float64(maxVolume)
		} else {
			topics[i].TrendScore = 100 * float64(n-i) / float64(n)
		}
	}
	return topics, nil
}

func extensionValue(item *gofeed.Item, prefix, name string) string {
	if item.Extensions == nil {
		return ""
	}
	if exts := item.Extensions[prefix][name]; len(exts) > 0 {
		return exts[0].Value
	}
	return ""
}

// parseTraffic turns "200,000+", "2K+" or "1.5M+" into a number. Unknown formats yield 0.
func parseTraffic(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "+")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1e3, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1e6, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "B"):
		mult, s = 1e9, strings.TrimSuffix(s, "B")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(v * mult)
}
