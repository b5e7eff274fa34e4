// Package worker runs the analysis pipeline: it pulls jobs off the queue and
// drives each one through blob download, condition analysis, price
// aggregation, persistence and the item state transition.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danbi-market/analysis-worker/internal/analysis"
	"github.com/danbi-market/analysis-worker/internal/blob"
	"github.com/danbi-market/analysis-worker/internal/queue"
	"github.com/danbi-market/analysis-worker/internal/store"
	"github.com/rs/zerolog/log"
)

// Pipeline failure classes surfaced to the queue as negative
// acknowledgements.
var (
	ErrDownload    = errors.New("blob download failed")
	ErrPersistence = errors.New("analysis persistence failed")
)

// DefaultPollInterval is the queue polling interval.
const DefaultPollInterval = time.Second

// JanitorInterval is how often expired leases are reaped.
const JanitorInterval = 30 * time.Second

// ConditionStage is the condition-analysis contract the worker depends on.
type ConditionStage interface {
	Analyze(ctx context.Context, images []analysis.Image, description string) (*analysis.ConditionReport, error)
}

// PricingStage is the price-aggregation contract the worker depends on.
type PricingStage interface {
	Price(ctx context.Context, report *analysis.ConditionReport) (*analysis.PriceRecommendation, error)
}

// Worker processes analysis jobs one at a time. Workers hold no state
// between jobs; any number of them can run against the same queue.
type Worker struct {
	queue        queue.Queue
	blobs        blob.Store
	condition    ConditionStage
	pricing      PricingStage
	items        store.ItemStore
	analyses     store.AnalysisStore
	pollInterval time.Duration
}

// New creates a worker.
func New(q queue.Queue, blobs blob.Store, condition ConditionStage, pricing PricingStage, items store.ItemStore, analyses store.AnalysisStore) *Worker {
	return &Worker{
		queue:        q,
		blobs:        blobs,
		condition:    condition,
		pricing:      pricing,
		items:        items,
		analyses:     analyses,
		pollInterval: DefaultPollInterval,
	}
}

// WithPollInterval overrides the queue polling interval.
func (w *Worker) WithPollInterval(d time.Duration) *Worker {
	w.pollInterval = d
	return w
}

// Run polls the queue until the context is cancelled. Each dequeued job runs
// to completion or failure; there is no mid-job cancellation beyond the
// context reaching the blocking calls inside the stages.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Dur("pollInterval", w.pollInterval).Msg("starting analysis worker")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("analysis worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes jobs until the queue is empty or the context is cancelled.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		d, err := w.queue.Dequeue()
		if err != nil {
			log.Error().Err(err).Msg("failed to dequeue job")
			return
		}
		if d == nil {
			return
		}
		w.handle(ctx, d)
	}
}

func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	start := time.Now()
	err := w.Process(ctx, d.Job)
	if err != nil {
		log.Error().Err(err).
			Str("jobID", d.Job.ID).
			Int64("itemID", d.Job.ItemID).
			Int("attempt", d.Attempts).
			Msg("job failed")
		if nackErr := w.queue.Nack(d); nackErr != nil {
			log.Error().Err(nackErr).Str("jobID", d.Job.ID).Msg("failed to nack job")
		}
		return
	}

	if ackErr := w.queue.Ack(d); ackErr != nil {
		log.Error().Err(ackErr).Str("jobID", d.Job.ID).Msg("failed to ack job")
		return
	}

	log.Info().
		Str("jobID", d.Job.ID).
		Int64("itemID", d.Job.ItemID).
		Dur("elapsed", time.Since(start)).
		Msg("job processed")
}

// Process runs one job through the pipeline. Any error aborts the remaining
// steps and leaves the item pending; no partial analysis row is ever
// written.
func (w *Worker) Process(ctx context.Context, job queue.Job) error {
	// 1. Resolve every blob pointer. A single failed download aborts the
	// whole job: a partial photo set would skew the condition assessment.
	images := make([]analysis.Image, 0, len(job.BlobPointers))
	for _, pointer := range job.BlobPointers {
		data, err := w.blobs.Get(ctx, pointer)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDownload, pointer, err)
		}
		images = append(images, analysis.Image{
			Data:     data,
			MIMEType: blob.MIMETypeForPointer(pointer),
		})
	}

	// 2. Condition analysis.
	report, err := w.condition.Analyze(ctx, images, job.Description)
	if err != nil {
		return fmt.Errorf("condition stage: %w", err)
	}

	// 3. Price aggregation.
	rec, err := w.pricing.Price(ctx, report)
	if err != nil {
		return fmt.Errorf("pricing stage: %w", err)
	}

	// 4. Persist one combined row. The insert is keyed on the job id, so a
	// redelivered job overwrites its own row instead of duplicating it.
	price := int64(rec.RecommendedPrice)
	row := &store.Analysis{
		ItemID:           job.ItemID,
		JobID:            job.ID,
		Name:             report.Name,
		Narrative:        report.Narrative,
		Issues:           report.Issues,
		Positives:        report.Positives,
		UsageLevel:       report.UsageLevel,
		RecommendedPrice: &price,
		PriceReason:      rec.PriceReason,
		Currency:         rec.Currency,
	}
	if err := w.analyses.SaveAnalysis(row); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// 5. Flip the item to active, strictly after the insert commits, so a
	// reader never sees an active item without an analysis row.
	if err := w.items.MarkItemActive(job.ItemID); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// Redelivery of a job whose first pass got as far as the
			// flip: the item is already active and the row is in place.
			log.Warn().Int64("itemID", job.ItemID).Str("jobID", job.ID).
				Msg("item already transitioned, treating as reprocessed job")
			return nil
		}
		// Analysis persisted but the item is stuck pending: detectable
		// by the reconciliation sweep, and safe to retry via redelivery.
		return fmt.Errorf("%w: activate item %d: %v", ErrPersistence, job.ItemID, err)
	}

	return nil
}

// RunJanitor periodically releases expired job leases so crashed workers'
// jobs get redelivered. Run one janitor per process.
func RunJanitor(ctx context.Context, q queue.Queue) {
	ticker := time.NewTicker(JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.ReapExpired(); err != nil {
				log.Error().Err(err).Msg("failed to reap expired leases")
			}
		}
	}
}
