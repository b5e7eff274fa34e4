package worker

import (
	"errors"

	"github.com/danbi-market/analysis-worker/internal/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Submitter enqueues analysis jobs. Submission is fire-and-forget: the
// caller gets the job id back immediately and the item stays pending until
// a worker completes the job.
type Submitter struct {
	queue queue.Queue
}

// NewSubmitter creates a submitter backed by the given queue.
func NewSubmitter(q queue.Queue) *Submitter {
	return &Submitter{queue: q}
}

// SubmitAnalysisJob enqueues a job for the item's photos and description and
// returns the generated job id.
func (s *Submitter) SubmitAnalysisJob(itemID int64, blobPointers []string, description string) (string, error) {
	if len(blobPointers) == 0 {
		return "", errors.New("at least one blob pointer is required")
	}

	job := queue.Job{
		ID:           uuid.NewString(),
		ItemID:       itemID,
		BlobPointers: blobPointers,
		Description:  description,
	}
	if err := s.queue.Enqueue(job); err != nil {
		return "", err
	}

	log.Info().
		Str("jobID", job.ID).
		Int64("itemID", itemID).
		Int("imageCount", len(blobPointers)).
		Msg("analysis job submitted")

	return job.ID, nil
}
