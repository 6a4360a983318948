package pipeline

import (
	"context"
	"fmt"

	"converter/internal"
	"converter/internal/parsers"
)

// IdentityResolver maps a normalized record to its canonical product
// id, allocating one when the record is new.
type IdentityResolver interface {
	Resolve(record *internal.NormalizedProduct) (string, error)
}

// DedupResult partitions a record's image URLs: kept canonical URLs,
// removed duplicates, and the fingerprint per unique image.
type DedupResult struct {
	UniqueURLs    []string
	DuplicateURLs []string
	Fingerprints  []string
}

// ImageDeduplicator fingerprints image URLs and maps duplicates back
// to the first-seen canonical URL.
type ImageDeduplicator interface {
	Process(urls []string) (DedupResult, error)
}

// BackfillService fills still-empty nullable fields from earlier
// versions of the same canonical product.
type BackfillService interface {
	Apply(record *internal.NormalizedProduct) error
}

// ImageDeleter removes duplicate images from the image storage.
type ImageDeleter interface {
	DeleteImages(ctx context.Context, urls []string) error
}

// Pipeline converts raw receiver records into catalog-ready products:
// handler lookup, normalization, identity resolution, image dedup,
// backfill. Stages run in that order; a stage failure fails only the
// record at hand.
type Pipeline struct {
	registry *parsers.Registry
	identity IdentityResolver
	dedup    ImageDeduplicator
	backfill BackfillService
	deleter  ImageDeleter
}

type Option func(*Pipeline)

func WithIdentityResolver(r IdentityResolver) Option {
	return func(p *Pipeline) { p.identity = r }
}

func WithImageDeduplicator(d ImageDeduplicator) Option {
	return func(p *Pipeline) { p.dedup = d }
}

func WithBackfill(b BackfillService) Option {
	return func(p *Pipeline) { p.backfill = b }
}

// WithImageDeleter wires the storage client that removes duplicate
// images. Without it duplicates are only recorded.
func WithImageDeleter(d ImageDeleter) Option {
	return func(p *Pipeline) { p.deleter = d }
}

// New builds a pipeline over the given registry. Stores default to
// the in-memory implementations.
func New(registry *parsers.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: registry,
		identity: NewMemoryIdentityResolver(),
		dedup:    NewMemoryImageDeduplicator(),
		backfill: NewMemoryBackfill(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessOne converts a single raw record.
func (p *Pipeline) ProcessOne(ctx context.Context, raw internal.RawProduct) (internal.NormalizedProduct, error) {
	handler, err := p.registry.Resolve(raw.ParserName)
	if err != nil {
		return internal.NormalizedProduct{}, err
	}

	record := handler.Normalize(raw)

	id, err := p.identity.Resolve(&record)
	if err != nil {
		return internal.NormalizedProduct{}, fmt.Errorf("resolve identity: %w", err)
	}
	record.CanonicalProductID = id

	dedup, err := p.dedup.Process(record.ImageURLs)
	if err != nil {
		return internal.NormalizedProduct{}, fmt.Errorf("dedup images: %w", err)
	}
	record.ImageURLs = dedup.UniqueURLs
	record.DuplicateImageURLs = dedup.DuplicateURLs
	record.ImageFingerprints = dedup.Fingerprints

	if p.deleter != nil && len(record.DuplicateImageURLs) > 0 {
		if err := p.deleter.DeleteImages(ctx, record.DuplicateImageURLs); err != nil {
			return internal.NormalizedProduct{}, fmt.Errorf("delete duplicate images: %w", err)
		}
	}

	if err := p.backfill.Apply(&record); err != nil {
		return internal.NormalizedProduct{}, fmt.Errorf("backfill: %w", err)
	}

	return record, nil
}

// ProcessMany converts a batch, stopping at the first failure.
func (p *Pipeline) ProcessMany(ctx context.Context, raws []internal.RawProduct) ([]internal.NormalizedProduct, error) {
	out := make([]internal.NormalizedProduct, 0, len(raws))
	for _, raw := range raws {
		record, err := p.ProcessOne(ctx, raw)
		if err != nil {
			return out, err
		}
		out = append(out, record)
	}
	return out, nil
}
