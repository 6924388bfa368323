package generation

import (
	"context"
	"fmt"
	"strings"

	"soundloom/internal/logging"
)

// RecoverOpenJobs reconciles every non-terminal tracked job against the
// provider. Jobs whose prediction already reached a terminal state are
// completed exactly as if the webhook had arrived, including artifact
// download and registry signalling. Returns the number of jobs recovered.
//
// Lost callbacks are the only reason a job stays open after its prediction
// finished, so the sweep runs before each mixdown wait and on operator
// demand.
func (p *Processor) RecoverOpenJobs(ctx context.Context) (int, error) {
	jobs, err := p.store.OpenJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open jobs: %w", err)
	}

	recovered := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		logger := p.logger.With(logging.Args(
			logging.String(logging.FieldJobType, string(job.Type)),
			logging.Int64(logging.FieldJobID, job.JobID),
			logging.String("prediction_id", job.PredictionID),
		)...)

		if strings.TrimSpace(job.PredictionID) == "" {
			logger.Warn("open job has no prediction id, cannot recover")
			continue
		}

		prediction, err := p.client.GetPrediction(ctx, job.PredictionID)
		if err != nil {
			logger.Warn("poll prediction", logging.Error(err))
			continue
		}
		if !statusOf(prediction.Status).Terminal() {
			continue
		}

		logger.Info("recovering job with lost callback", logging.String("status", prediction.Status))
		if err := p.ProcessWebhook(ctx, job.Type, job.JobID, prediction); err != nil {
			logger.Warn("recovery processing failed", logging.Error(err))
			continue
		}
		recovered++
	}
	return recovered, nil
}
