package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/google/uuid"

	"converter/internal"
	"converter/internal/parsers"
)

// FingerprintURL is the canonical image fingerprint: sha-256 of the
// trimmed URL.
func FingerprintURL(url string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(sum[:])
}

type identityKey struct {
	parser string
	typ    string
	value  string
}

// MemoryIdentityResolver resolves canonical ids in process memory.
// Resolution priority: plu, sku, source_id, then the normalized-name
// fallback. An id, once allocated, is never reassigned.
type MemoryIdentityResolver struct {
	mu    sync.Mutex
	index map[identityKey]string
}

func NewMemoryIdentityResolver() *MemoryIdentityResolver {
	return &MemoryIdentityResolver{index: map[identityKey]string{}}
}

func (r *MemoryIdentityResolver) Resolve(record *internal.NormalizedProduct) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parser := parsers.CanonicalName(record.ParserName)
	candidates := record.IdentityCandidates()

	for _, candidate := range candidates {
		if existing, ok := r.index[identityKey{parser, candidate.Type, candidate.Value}]; ok {
			return existing, nil
		}
	}

	fallbackKey := identityKey{parser, "normalized_name", record.FallbackIdentity()}
	if existing, ok := r.index[fallbackKey]; ok {
		for _, candidate := range candidates {
			r.index[identityKey{parser, candidate.Type, candidate.Value}] = existing
		}
		return existing, nil
	}

	id := uuid.NewString()
	r.index[fallbackKey] = id
	for _, candidate := range candidates {
		r.index[identityKey{parser, candidate.Type, candidate.Value}] = id
	}
	return id, nil
}

// MemoryImageDeduplicator keeps image fingerprints in process memory.
// The first URL seen for a fingerprint stays canonical; later distinct
// URLs with the same fingerprint are duplicates, as are repeats within
// one record.
type MemoryImageDeduplicator struct {
	mu        sync.Mutex
	canonical map[string]string
}

func NewMemoryImageDeduplicator() *MemoryImageDeduplicator {
	return &MemoryImageDeduplicator{canonical: map[string]string{}}
}

func (d *MemoryImageDeduplicator) Process(urls []string) (DedupResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result DedupResult
	seenInRecord := map[string]struct{}{}

	for _, rawURL := range urls {
		url := strings.TrimSpace(rawURL)
		if url == "" {
			continue
		}

		fingerprint := FingerprintURL(url)
		canonical, known := d.canonical[fingerprint]
		if !known {
			d.canonical[fingerprint] = url
			canonical = url
		} else if canonical != url {
			result.DuplicateURLs = append(result.DuplicateURLs, url)
		}

		if _, repeat := seenInRecord[fingerprint]; repeat {
			if url != canonical {
				result.DuplicateURLs = append(result.DuplicateURLs, url)
			}
			continue
		}
		seenInRecord[fingerprint] = struct{}{}
		result.UniqueURLs = append(result.UniqueURLs, canonical)
		result.Fingerprints = append(result.Fingerprints, fingerprint)
	}

	return result, nil
}

// MemoryBackfill keeps per-product field history in process memory
// and records every applied product as a new version.
type MemoryBackfill struct {
	mu      sync.Mutex
	history map[string][]FieldHistory
}

func NewMemoryBackfill() *MemoryBackfill {
	return &MemoryBackfill{history: map[string][]FieldHistory{}}
}

func (b *MemoryBackfill) Apply(record *internal.NormalizedProduct) error {
	if record.CanonicalProductID == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	history := b.history[record.CanonicalProductID]
	BackfillFromHistory(record, history)
	b.history[record.CanonicalProductID] = append(history, HistoryOf(record))
	return nil
}
