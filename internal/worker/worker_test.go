package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/danbi-market/analysis-worker/internal/analysis"
	"github.com/danbi-market/analysis-worker/internal/queue"
	"github.com/danbi-market/analysis-worker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobs struct {
	blobs map[string][]byte
}

func (f *fakeBlobs) Get(_ context.Context, pointer string) ([]byte, error) {
	data, ok := f.blobs[pointer]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", pointer)
	}
	return data, nil
}

func (f *fakeBlobs) Put(_ context.Context, pointer string, data []byte, _ string) error {
	f.blobs[pointer] = data
	return nil
}

type fakeCondition struct {
	report *analysis.ConditionReport
	err    error
	images []analysis.Image
	desc   string
	calls  int
}

func (f *fakeCondition) Analyze(_ context.Context, images []analysis.Image, description string) (*analysis.ConditionReport, error) {
	f.calls++
	f.images = images
	f.desc = description
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakePricing struct {
	rec   *analysis.PriceRecommendation
	err   error
	calls int
}

func (f *fakePricing) Price(_ context.Context, _ *analysis.ConditionReport) (*analysis.PriceRecommendation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

// failingAnalyses wraps a real store but fails every insert.
type failingAnalyses struct{}

func (failingAnalyses) SaveAnalysis(*store.Analysis) error { return errors.New("disk full") }
func (failingAnalyses) LatestAnalysisByItem(int64) (*store.Analysis, error) {
	return nil, nil
}
func (failingAnalyses) AnalysesByOwner(int64) ([]store.Analysis, error) { return nil, nil }

type fixture struct {
	store   *store.SQLiteStore
	queue   *queue.SQLiteQueue
	blobs   *fakeBlobs
	cond    *fakeCondition
	pricing *fakePricing
	worker  *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLiteStore(filepath.Join(dir, "items.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q, err := queue.NewSQLiteQueue(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	blobs := &fakeBlobs{blobs: map[string][]byte{
		"items/42/imgA.jpg": []byte("front"),
		"items/42/imgB.jpg": []byte("back"),
	}}
	cond := &fakeCondition{report: &analysis.ConditionReport{
		Name:       "Acme walking shoes",
		Narrative:  "Lightly worn pair with clean soles.",
		Issues:     []string{"scuff on left toe"},
		Positives:  []string{"original box included"},
		UsageLevel: "light",
	}}
	pricing := &fakePricing{rec: &analysis.PriceRecommendation{
		RecommendedPrice: 680000,
		PriceReason:      "based on 1 comparable listing",
		Currency:         analysis.CurrencyKRW,
	}}

	return &fixture{
		store:   st,
		queue:   q,
		blobs:   blobs,
		cond:    cond,
		pricing: pricing,
		worker:  New(q, blobs, cond, pricing, st, st),
	}
}

func (f *fixture) newItem(t *testing.T, pointers ...string) (*store.Item, queue.Job) {
	t.Helper()
	item, err := f.store.CreateItem(7)
	require.NoError(t, err)
	for _, p := range pointers {
		_, err := f.store.AddItemImage(item.ID, p)
		require.NoError(t, err)
	}
	return item, queue.Job{
		ID:           "job-1",
		ItemID:       item.ID,
		BlobPointers: pointers,
		Description:  "worn a handful of times",
	}
}

func TestProcess_Success(t *testing.T) {
	f := newFixture(t)
	item, job := f.newItem(t, "items/42/imgA.jpg", "items/42/imgB.jpg")

	require.NoError(t, f.worker.Process(context.Background(), job))

	// Both images reached the condition stage with their bytes intact.
	require.Len(t, f.cond.images, 2)
	assert.Equal(t, []byte("front"), f.cond.images[0].Data)
	assert.Equal(t, []byte("back"), f.cond.images[1].Data)
	assert.Equal(t, "image/jpeg", f.cond.images[0].MIMEType)
	assert.Equal(t, "worn a handful of times", f.cond.desc)

	got, err := f.store.LatestAnalysisByItem(item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "Acme walking shoes", got.Name)
	assert.Equal(t, "light", got.UsageLevel)
	require.NotNil(t, got.RecommendedPrice)
	assert.Equal(t, int64(680000), *got.RecommendedPrice)
	assert.Equal(t, "based on 1 comparable listing", got.PriceReason)
	assert.Equal(t, analysis.CurrencyKRW, got.Currency)

	updated, err := f.store.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ItemStatusActive, updated.Status)
}

func TestProcess_DownloadFailureAbortsBeforeAnalysis(t *testing.T) {
	f := newFixture(t)
	item, job := f.newItem(t, "items/42/imgA.jpg", "items/42/missing.jpg")

	err := f.worker.Process(context.Background(), job)
	require.ErrorIs(t, err, ErrDownload)

	// No partial set ever reaches the model, no row is written and the item
	// stays pending.
	assert.Zero(t, f.cond.calls)
	assert.Zero(t, f.pricing.calls)

	got, err := f.store.LatestAnalysisByItem(item.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	updated, err := f.store.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ItemStatusPending, updated.Status)
}

func TestProcess_ConditionFailureLeavesItemPending(t *testing.T) {
	f := newFixture(t)
	f.cond.err = fmt.Errorf("decode response: %w", analysis.ErrConditionParse)
	item, job := f.newItem(t, "items/42/imgA.jpg")

	err := f.worker.Process(context.Background(), job)
	require.ErrorIs(t, err, analysis.ErrConditionParse)

	assert.Zero(t, f.pricing.calls)

	got, err := f.store.LatestAnalysisByItem(item.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	updated, err := f.store.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ItemStatusPending, updated.Status)
}

func TestProcess_PricingFailureLeavesItemPending(t *testing.T) {
	f := newFixture(t)
	f.pricing.err = fmt.Errorf("decode response: %w", analysis.ErrPriceParse)
	item, job := f.newItem(t, "items/42/imgA.jpg")

	err := f.worker.Process(context.Background(), job)
	require.ErrorIs(t, err, analysis.ErrPriceParse)

	got, err := f.store.LatestAnalysisByItem(item.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	updated, err := f.store.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ItemStatusPending, updated.Status)
}

func TestProcess_PersistenceFailureLeavesItemPending(t *testing.T) {
	f := newFixture(t)
	item, job := f.newItem(t, "items/42/imgA.jpg")
	w := New(f.queue, f.blobs, f.cond, f.pricing, f.store, failingAnalyses{})

	err := w.Process(context.Background(), job)
	require.ErrorIs(t, err, ErrPersistence)

	updated, err := f.store.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ItemStatusPending, updated.Status)
}

func TestProcess_RedeliveryAfterFlipIsIdempotent(t *testing.T) {
	f := newFixture(t)
	item, job := f.newItem(t, "items/42/imgA.jpg")

	require.NoError(t, f.worker.Process(context.Background(), job))
	// Second delivery of the same job: the guarded transition reports the
	// item is already active and the job settles cleanly.
	require.NoError(t, f.worker.Process(context.Background(), job))

	rows, err := f.store.AnalysesByOwner(7)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, item.ID, rows[0].ItemID)
}

func TestSubmitAnalysisJob(t *testing.T) {
	f := newFixture(t)
	item, _ := f.newItem(t, "items/42/imgA.jpg", "items/42/imgB.jpg")

	s := NewSubmitter(f.queue)
	jobID, err := s.SubmitAnalysisJob(item.ID, []string{"items/42/imgA.jpg", "items/42/imgB.jpg"}, "desc")
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	d, err := f.queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, jobID, d.Job.ID)
	assert.Equal(t, item.ID, d.Job.ItemID)
	assert.Equal(t, []string{"items/42/imgA.jpg", "items/42/imgB.jpg"}, d.Job.BlobPointers)
	assert.Equal(t, "desc", d.Job.Description)
}

func TestSubmitAnalysisJob_RequiresImages(t *testing.T) {
	f := newFixture(t)
	s := NewSubmitter(f.queue)

	_, err := s.SubmitAnalysisJob(1, nil, "desc")
	require.Error(t, err)
}

func TestWorker_EndToEndThroughQueue(t *testing.T) {
	f := newFixture(t)
	item, _ := f.newItem(t, "items/42/imgA.jpg", "items/42/imgB.jpg")

	s := NewSubmitter(f.queue)
	_, err := s.SubmitAnalysisJob(item.ID, []string{"items/42/imgA.jpg", "items/42/imgB.jpg"}, "desc")
	require.NoError(t, err)

	d, err := f.queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, d)
	f.worker.handle(context.Background(), d)

	// Settled job, active item, one analysis row.
	d, err = f.queue.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, d)

	updated, err := f.store.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ItemStatusActive, updated.Status)

	got, err := f.store.LatestAnalysisByItem(item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.RecommendedPrice)
	assert.Equal(t, int64(680000), *got.RecommendedPrice)
}

func TestWorker_FailedJobIsRedelivered(t *testing.T) {
	f := newFixture(t)
	item, _ := f.newItem(t, "items/42/imgA.jpg")
	f.cond.err = errors.New("model unavailable")

	s := NewSubmitter(f.queue)
	_, err := s.SubmitAnalysisJob(item.ID, []string{"items/42/imgA.jpg"}, "desc")
	require.NoError(t, err)

	d, err := f.queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, d)
	f.worker.handle(context.Background(), d)

	// The job went back to ready for another attempt.
	d, err = f.queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 2, d.Attempts)
}
