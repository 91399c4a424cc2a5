package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/ninjafinder/internal/domain/job"
	"github.com/geocoder89/ninjafinder/internal/jobs"
	"github.com/geocoder89/ninjafinder/internal/notifications"
)

const (
	resultDone    = "done"
	resultRetry   = "retry"
	resultFailed  = "failed"
	maxErrMessage = 1000
)

// ProcessOne claims and runs at most one job. It reports whether a job was claimed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	// a claimed job is finished even when shutdown starts mid-flight
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	start := w.now()

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	err = w.execute(runCtx, j)

	if err != nil {
		result := w.handleFailure(runCtx, j, err)
		w.prom.ObserveJob(j.Type, result, w.now().Sub(start))
		return true, nil
	}

	err = w.repo.MarkDone(runCtx, j.ID)

	if err != nil {
		_ = w.repo.MarkFailed(runCtx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	w.prom.ObserveJob(j.Type, resultDone, w.now().Sub(start))
	w.log.Info("job_done", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)

	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	payload, err := jobs.DecodePayload(j)

	if err != nil {
		return permanent(err)
	}

	switch p := payload.(type) {
	case jobs.UserWelcomePayload:
		return w.notifier.SendWelcome(ctx, notifications.WelcomeInput{
			UserID: p.UserID,
			Email:  p.Email,
			Name:   p.Name,
		})
	default:
		return permanent(fmt.Errorf("%w: %s", jobs.ErrInvalidJobType, j.Type))
	}
}

// handleFailure reschedules with backoff or marks the job failed when it is
// out of attempts or can never succeed. Returns the metrics result label.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	msg := cause.Error()
	if len(msg) > maxErrMessage {
		msg = msg[:maxErrMessage]
	}

	if isPermanent(cause) || j.Exhausted() {
		err := w.repo.MarkFailed(ctx, j.ID, msg)
		if err != nil {
			w.log.Error("mark_failed_failed", "job_id", j.ID, "err", err)
		}

		w.log.Warn("job_failed", "job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts+1, "err", cause)
		return resultFailed
	}

	runAt := w.now().Add(w.backoff(j.Attempts))

	err := w.repo.Reschedule(ctx, j.ID, runAt, msg)
	if err != nil {
		w.log.Error("reschedule_failed", "job_id", j.ID, "err", err)
	}

	w.log.Info("job_rescheduled", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1, "run_at", runAt, "err", cause)
	return resultRetry
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
