package persistence

import (
	"context"

	"blogwire/internal/core"
)

// Stats is the combined article and topic summary shown by the stats command and endpoint.
type Stats struct {
	Articles core.ArticleStats `json:"articles"`
	Topics   core.TopicStats   `json:"topics"`
}

// CollectStats gathers article and topic counters from db.
func CollectStats(ctx context.Context, db Database) (*Stats, error) {
	articles, err := db.Articles().Stats(ctx)
	if err != nil {
		return nil, err
	}
	topics, err := db.Topics().Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Articles: *articles, Topics: *topics}, nil
}
