package visual

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"blogwire/internal/core"
	"blogwire/internal/logger"
	"blogwire/internal/textutil"

	"github.com/google/uuid"
)

// SizeObserver receives image byte sizes per phase ("original", "optimized").
type SizeObserver interface {
	ObserveImageBytes(phase string, n int)
}

// Processor fetches, optimizes and stores featured images.
type Processor struct {
	sources     []Source
	optimizer   *Optimizer
	store       ObjectStore
	placeholder string
	observer    SizeObserver
	now         func() time.Time
	log         *logger.Logger
}

// NewProcessor creates a Processor trying sources in order.
func NewProcessor(sources []Source, optimizer *Optimizer, store ObjectStore) *Processor {
	if optimizer == nil {
		optimizer = NewOptimizer(0, 0)
	}
	return &Processor{
		sources:   sources,
		optimizer: optimizer,
		store:     store,
		now:       time.Now,
		log:       logger.Get(),
	}
}

// WithPlaceholder sets the URL returned when every source fails.
func (p *Processor) WithPlaceholder(url string) *Processor {
	p.placeholder = url
	return p
}

// WithObserver records image sizes.
func (p *Processor) WithObserver(o SizeObserver) *Processor {
	p.observer = o
	return p
}

// WithLogger replaces the logger.
func (p *Processor) WithLogger(l *logger.Logger) *Processor {
	p.log = l
	return p
}

// ProduceFeaturedImage returns the public URL of a stored featured image. Optimization
// failures fall back to the source bytes. When no source yields an image the
// placeholder is returned, or core.ErrImage without one.
func (p *Processor) ProduceFeaturedImage(ctx context.Context, title, keyword string, keywords []string) (string, error) {
	req := Request{Title: title, Keyword: keyword, Keywords: keywords}

	img, err := p.fetch(ctx, req)
	if err != nil {
		if p.placeholder != "" {
			p.log.Warn("No featured image source succeeded, using placeholder", "keyword", keyword, "error", err.Error())
			return p.placeholder, nil
		}
		return "", err
	}

	data, contentType := img.Data, img.ContentType
	log := p.log.With("keyword", keyword, "source", img.Source)

	opt, err := p.optimizer.Optimize(img.Data)
	if err != nil {
		log.Warn("Image optimization failed, storing original", "error", err.Error(), "original_bytes", len(img.Data))
	} else {
		data, contentType = opt.Data, opt.ContentType
		log.Info("Optimized featured image",
			"original_bytes", opt.OriginalBytes,
			"optimized_bytes", len(opt.Data),
			"width", opt.Width,
			"height", opt.Height,
			"resized", opt.Resized)
	}
	p.observe("original", len(img.Data))
	p.observe("optimized", len(data))

	url, err := p.store.Put(ctx, p.objectKey(keyword, contentType), data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store featured image: %w: %w", core.ErrImage, err)
	}
	return url, nil
}

func (p *Processor) fetch(ctx context.Context, req Request) (*Image, error) {
	var errs []error
	for _, src := range p.sources {
		img, err := src.Fetch(ctx, req)
		if err != nil {
			p.log.Warn("Image source failed", "source", src.Name(), "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if img == nil || len(img.Data) == 0 {
			errs = append(errs, fmt.Errorf("%s: empty image", src.Name()))
			continue
		}
		return img, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no image sources configured: %w", core.ErrImage)
	}
	return nil, fmt.Errorf("all image sources failed: %w: %w", core.ErrImage, errors.Join(errs...))
}

// objectKey builds "2006/01/<slug>-<id>.<ext>".
func (p *Processor) objectKey(keyword, contentType string) string {
	slug := strings.Trim(textutil.Truncate(textutil.Slugify(keyword), 60), "-")
	if slug == "" {
		slug = "featured"
	}
	name := fmt.Sprintf("%s-%s%s", slug, uuid.NewString()[:8], extensionFor(contentType))
	return path.Join(p.now().UTC().Format("2006/01"), name)
}

func (p *Processor) observe(phase string, n int) {
	if p.observer != nil {
		p.observer.ObserveImageBytes(phase, n)
	}
}
