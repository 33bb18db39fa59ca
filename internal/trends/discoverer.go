package trends

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"blogwire/internal/core"
	"blogwire/internal/logger"
	"blogwire/internal/textutil"

	"golang.org/x/time/rate"
)

// TopicStore is the part of the topic repository discovery needs.
type TopicStore interface {
	ExistsByKeyword(ctx context.Context, keyword string) (bool, error)
	Create(ctx context.Context, topic *core.Topic) error
}

// Discoverer queries a Source once per geo and saves new keywords as pending topics.
type Discoverer struct {
	source   Source
	geos     []string
	category string
	limiter  *rate.Limiter
	store    TopicStore
	log      *logger.Logger
}

// NewDiscoverer creates a Discoverer. interval is the minimum gap between two
// requests to source; zero disables the limit.
func NewDiscoverer(source Source, store TopicStore, geos []string, category string, interval time.Duration) *Discoverer {
	if len(geos) == 0 {
		geos = []string{""}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Discoverer{
		source:   source,
		geos:     geos,
		category: category,
		limiter:  rate.NewLimiter(limit, 1),
		store:    store,
		log:      logger.Get(),
	}
}

// WithLogger replaces the logger.
func (d *Discoverer) WithLogger(l *logger.Logger) *Discoverer {
	d.log = l
	return d
}

// Discover returns up to maxResults topics across all geos, highest score first.
// Source failures are logged and never returned; a total failure yields an empty slice.
func (d *Discoverer) Discover(ctx context.Context, maxResults int) []core.DiscoveredTopic {
	byKeyword := map[string]core.DiscoveredTopic{}

	for _, geo := range d.geos {
		if err := d.limiter.Wait(ctx); err != nil {
			d.log.Warn("Trend discovery interrupted", "error", err.Error())
			break
		}

		topics, err := d.source.Fetch(ctx, Query{Geo: geo, Category: d.category})
		if err != nil {
			d.log.Warn("Trend source failed", "geo", geo, "error", err.Error())
			continue
		}
		d.log.Debug("Fetched trends", "geo", geo, "count", len(topics))

		for _, t := range topics {
			key := textutil.NormalizeKeyword(t.Keyword)
			if key == "" {
				continue
			}
			if t.Category == "" {
				t.Category = d.category
			}
			if prev, ok := byKeyword[key]; !ok || t.TrendScore > prev.TrendScore {
				byKeyword[key] = t
			}
		}
	}

	out := make([]core.DiscoveredTopic, 0, len(byKeyword))
	for _, t := range byKeyword {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrendScore != out[j].TrendScore {
			return out[i].TrendScore > out[j].TrendScore
		}
		if out[i].SearchVolume != out[j].SearchVolume {
			return out[i].SearchVolume > out[j].SearchVolume
		}
		return out[i].Keyword < out[j].Keyword
	})
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// SaveNew inserts topics whose normalized keyword is not yet stored in any status.
// It returns the inserted topics.
func (d *Discoverer) SaveNew(ctx context.Context, topics []core.DiscoveredTopic) ([]core.Topic, error) {
	var saved []core.Topic
	seen := map[string]bool{}

	for _, t := range topics {
		keyword := strings.Join(strings.Fields(t.Keyword), " ")
		key := textutil.NormalizeKeyword(keyword)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		exists, err := d.store.ExistsByKeyword(ctx, keyword)
		if err != nil {
			return saved, fmt.Errorf("failed to check topic %q: %w", keyword, err)
		}
		if exists {
			d.log.Debug("Topic already known", "keyword", keyword)
			continue
		}

		topic := core.Topic{
			Keyword:      keyword,
			SearchVolume: t.SearchVolume,
			TrendScore:   t.TrendScore,
			Category:     t.Category,
			Status:       core.TopicStatusPending,
		}
		if err := d.store.Create(ctx, &topic); err != nil {
			if errors.Is(err, core.ErrDuplicate) {
				continue
			}
			return saved, fmt.Errorf("failed to save topic %q: %w", keyword, err)
		}
		saved = append(saved, topic)
	}

	d.log.Info("Saved discovered topics", "offered", len(topics), "saved", len(saved))
	return saved, nil
}
