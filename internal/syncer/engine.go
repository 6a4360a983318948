package syncer

import (
	"context"
	"fmt"
	"log"

	"converter/internal/parsers"
	"converter/internal/pipeline"
	"converter/internal/storage"
)

// Job describes one receiver→catalog sync run.
type Job struct {
	ReceiverDB string
	CatalogDB  string
	ParserName string
	BatchSize  int
	MaxBatches int

	// OnBatch, when set, runs after every committed batch.
	OnBatch func(report Report)
}

// Report is the outcome of a run. Failed counts records that were
// skipped, not records that aborted the run.
type Report struct {
	Batches   int `json:"batches"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`

	CursorIngestedAt string `json:"cursor_ingested_at,omitempty"`
	CursorProductID  int64  `json:"cursor_product_id,omitempty"`
}

// Engine drives sync runs: receiver batches through the conversion
// pipeline into the catalog, advancing the stored cursor per batch.
type Engine struct {
	registry *parsers.Registry
	deleter  pipeline.ImageDeleter
}

type Option func(*Engine)

// WithImageDeleter wires the storage client used to remove duplicate
// images during conversion.
func WithImageDeleter(d pipeline.ImageDeleter) Option {
	return func(e *Engine) { e.deleter = d }
}

func NewEngine(registry *parsers.Registry, opts ...Option) *Engine {
	e := &Engine{registry: registry}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the job. The receiver schema check happens before the
// catalog is touched; a failed check means zero writes.
func (e *Engine) Run(ctx context.Context, job Job) (Report, error) {
	var report Report

	if _, err := e.registry.Resolve(job.ParserName); err != nil {
		return report, err
	}

	receiver, err := storage.OpenReceiver(job.ReceiverDB)
	if err != nil {
		return report, fmt.Errorf("open receiver: %w", err)
	}
	defer receiver.Close()

	if err := receiver.CheckSchema(); err != nil {
		return report, err
	}

	catalog, err := storage.OpenCatalog(job.CatalogDB)
	if err != nil {
		return report, fmt.Errorf("open catalog: %w", err)
	}
	defer catalog.Close()

	pipe := pipeline.New(e.registry,
		pipeline.WithIdentityResolver(catalog),
		pipeline.WithImageDeduplicator(catalog),
		pipeline.WithBackfill(catalog),
		pipeline.WithImageDeleter(e.deleter),
	)

	cursor, err := catalog.GetCursor(ctx, job.ParserName)
	if err != nil {
		return report, fmt.Errorf("read cursor: %w", err)
	}

	batchSize := job.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch, next, err := receiver.FetchBatch(ctx, job.ParserName, cursor, batchSize)
		if err != nil {
			return report, fmt.Errorf("fetch batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, raw := range batch {
			record, err := pipe.ProcessOne(ctx, raw)
			if err != nil {
				report.Failed++
				log.Printf("sync %s: convert product: %v", job.ParserName, err)
				continue
			}
			if err := catalog.WriteOne(ctx, record); err != nil {
				report.Failed++
				log.Printf("sync %s: write product %s: %v", job.ParserName, record.CanonicalProductID, err)
				continue
			}
			report.Processed++
		}

		if err := catalog.SetCursor(ctx, job.ParserName, *next); err != nil {
			return report, fmt.Errorf("advance cursor: %w", err)
		}
		cursor = next
		report.Batches++
		report.CursorIngestedAt = next.IngestedAt
		report.CursorProductID = next.ProductID

		if job.OnBatch != nil {
			job.OnBatch(report)
		}
		if job.MaxBatches > 0 && report.Batches >= job.MaxBatches {
			break
		}
	}

	return report, nil
}
