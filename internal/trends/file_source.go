package trends

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"blogwire/internal/core"
)

// FileSource reads fallback keywords from a text file, one per line.
// Blank lines and lines starting with # are ignored.
type FileSource struct {
	path     string
	category string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, category: "custom"}
}

// Keywords returns the keywords in file order. A missing file yields no keywords.
func (s *FileSource) Keywords() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open topics file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var keywords []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read topics file: %w", err)
	}
	return keywords, nil
}

// Fetch implements Source. Every keyword gets the same score.
func (s *FileSource) Fetch(_ context.Context, q Query) ([]core.DiscoveredTopic, error) {
	keywords, err := s.Keywords()
	if err != nil {
		return nil, err
	}
	category := q.Category
	if category == "" {
		category = s.category
	}
	topics := make([]core.DiscoveredTopic, 0, len(keywords))
	for _, kw := range keywords {
		topics = append(topics, core.DiscoveredTopic{Keyword: kw, TrendScore: 1, Category: category})
	}
	return topics, nil
}
