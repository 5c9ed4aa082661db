// Package batch groups GVF records by chromosome and normalizes each group
// against its own reference sequence.
package batch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inodb/gvf2vcf/internal/gvf"
	"github.com/inodb/gvf2vcf/internal/normalize"
	"github.com/inodb/gvf2vcf/internal/reference"
)

// ReferenceLoader defines the interface for loading one chromosome's sequence.
type ReferenceLoader interface {
	Load(chrom string) (*reference.Sequence, error)
}

// Batch holds the records of a single chromosome.
type Batch struct {
	Chrom   string
	Records []*gvf.Record
}

// needsReference reports whether any record in the batch must be normalized.
func (b *Batch) needsReference() bool {
	for _, r := range b.Records {
		if !r.IsSNV() {
			return true
		}
	}
	return false
}

// Processor normalizes records one chromosome at a time.
type Processor struct {
	loader       ReferenceLoader
	workers      int
	allowMissing bool
	logger       *zap.Logger
}

// NewProcessor creates a new processor backed by the given reference loader.
func NewProcessor(loader ReferenceLoader) *Processor {
	return &Processor{
		loader:  loader,
		workers: 1,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for progress and warning messages.
func (p *Processor) SetLogger(l *zap.Logger) {
	p.logger = l
}

// SetWorkers sets how many chromosomes are processed concurrently.
// Values below 1 mean sequential processing.
func (p *Processor) SetWorkers(n int) {
	p.workers = max(n, 1)
}

// SetAllowMissingReference configures what happens when a chromosome is absent
// from the reference. When allowed, the chromosome's non-SNV records are
// dropped with a warning instead of failing the run.
func (p *Processor) SetAllowMissingReference(allow bool) {
	p.allowMissing = allow
}

// Group splits records into per-chromosome batches in first-seen order.
func Group(records []*gvf.Record) []*Batch {
	index := make(map[string]*Batch)
	var batches []*Batch
	for _, r := range records {
		b, ok := index[r.Chrom]
		if !ok {
			b = &Batch{Chrom: r.Chrom}
			index[r.Chrom] = b
			batches = append(batches, b)
		}
		b.Records = append(b.Records, r)
	}
	return batches
}

// Run normalizes every non-SNV record and returns all records, grouped by
// chromosome in first-seen order. The first error aborts the run.
func (p *Processor) Run(records []*gvf.Record) ([]*gvf.Record, error) {
	return p.RunContext(context.Background(), records)
}

// RunContext is Run with cancellation. Chromosomes not yet started when ctx
// is cancelled are never loaded.
func (p *Processor) RunContext(ctx context.Context, records []*gvf.Record) ([]*gvf.Record, error) {
	batches := Group(records)

	items := make(chan WorkItem, len(batches))
	for i, b := range batches {
		items <- WorkItem{Seq: i, Batch: b}
	}
	close(items)

	out := make([]*gvf.Record, 0, len(records))
	done := 0
	err := OrderedCollect(p.ParallelProcess(ctx, items, p.workers), func(r WorkResult) error {
		if r.Err != nil {
			return r.Err
		}
		out = append(out, r.Records...)
		done++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if done < len(batches) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%d of %d chromosomes were not processed", len(batches)-done, len(batches))
	}
	return out, nil
}

// Process normalizes a single chromosome batch. The reference is loaded at
// most once and released when the batch is done.
func (p *Processor) Process(b *Batch) ([]*gvf.Record, error) {
	if !b.needsReference() {
		p.logger.Debug("no records to normalize",
			zap.String("chrom", b.Chrom),
			zap.Int("records", len(b.Records)))
		return b.Records, nil
	}

	ref, err := p.loader.Load(b.Chrom)
	if err != nil {
		if p.allowMissing && errors.Is(err, reference.ErrReferenceNotFound) {
			kept := snvOnly(b.Records)
			p.logger.Warn("chromosome missing from reference, dropping non-SNV records",
				zap.String("chrom", b.Chrom),
				zap.Int("dropped", len(b.Records)-len(kept)))
			return kept, nil
		}
		return nil, fmt.Errorf("chromosome %s: %w", b.Chrom, err)
	}

	p.logger.Info("loaded reference",
		zap.String("chrom", b.Chrom),
		zap.Int("line_width", ref.LineWidth),
		zap.Int64("bases", ref.Len()))

	normalized := 0
	for _, r := range b.Records {
		if r.IsSNV() {
			continue
		}
		if err := normalize.Normalize(r, ref); err != nil {
			return nil, fmt.Errorf("chromosome %s: normalize %s: %w", b.Chrom, r.Label(), err)
		}
		normalized++
	}

	p.logger.Info("normalized records",
		zap.String("chrom", b.Chrom),
		zap.Int("normalized", normalized),
		zap.Int("snv", len(b.Records)-normalized))

	return b.Records, nil
}

func snvOnly(records []*gvf.Record) []*gvf.Record {
	kept := make([]*gvf.Record, 0, len(records))
	for _, r := range records {
		if r.IsSNV() {
			kept = append(kept, r)
		}
	}
	return kept
}
