package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/domain"
	"github.com/gsaplatform/orchestrator/internal/notify"
)

// Sweeper reclaims jobs a worker stalled on: if no progress update has
// reached the Blackboard for a running job within its timeout, the
// sweeper transitions it to failed rather than leaving clients polling
// forever. It is the last line of defense behind the Broker's own
// redelivery-count limit.
type Sweeper struct {
	bb               *blackboard.Blackboard
	mailer           *notify.Mailer
	mailErrorAddress string
	statusTTL        time.Duration
	analysisTimeout  time.Duration
	datasetTimeout   time.Duration
	interval         time.Duration
	logger           *slog.Logger
}

// NewSweeper builds a Sweeper. analysisTimeout and datasetTimeout
// correspond to MAX_WORKER_TIMEOUT and LOADING_MAX_TIMEOUT; interval is
// how often the sweep runs. mailer may be nil when no SMTP relay is
// configured; operator alerts on a stall-promoted failure are then
// skipped.
func NewSweeper(bb *blackboard.Blackboard, mailer *notify.Mailer, mailErrorAddress string, statusTTL, analysisTimeout, datasetTimeout, interval time.Duration) *Sweeper {
	return &Sweeper{
		bb:               bb,
		mailer:           mailer,
		mailErrorAddress: mailErrorAddress,
		statusTTL:        statusTTL,
		analysisTimeout:  analysisTimeout,
		datasetTimeout:   datasetTimeout,
		interval:         interval,
		logger:           slog.Default().With("component", "sweeper"),
	}
}

// alertOperator sends the §7 operator alert for a worker-timeout
// promotion, which is never a ValidationError and so always qualifies.
func (s *Sweeper) alertOperator(jobID, reason string) {
	if s.mailer == nil || s.mailErrorAddress == "" {
		return
	}
	if err := s.mailer.SendOperatorAlert(s.mailErrorAddress, jobID, reason); err != nil {
		s.logger.Warn("operator alert failed", "job_id", jobID, "error", err)
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("sweeper starting", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper shutting down")
			return nil
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	s.sweepAnalysis(ctx)
	s.sweepDataset(ctx)
}

func (s *Sweeper) sweepAnalysis(ctx context.Context) {
	ids, err := s.bb.RunningIDs(ctx, "analysis")
	if err != nil {
		s.logger.Error("list running analysis jobs", "error", err)
		return
	}
	for _, id := range ids {
		job, _, err := getJSON[domain.Job](ctx, s.bb, blackboard.StatusKey(id))
		if err != nil {
			if errors.Is(err, blackboard.ErrNotFound) {
				_ = s.bb.UntrackRunning(ctx, "analysis", id)
			}
			continue
		}
		if job.State != domain.JobStateRunning {
			_ = s.bb.UntrackRunning(ctx, "analysis", id)
			continue
		}
		if time.Since(job.UpdatedAt) < s.analysisTimeout {
			continue
		}
		s.logger.Warn("analysis job stalled, failing", "job_id", id, "last_update", job.UpdatedAt)
		updated, err := casUpdate(ctx, s.bb, blackboard.StatusKey(id), s.statusTTL, func(j *domain.Job) {
			j.State = domain.JobStateFailed
			j.Description = "worker timeout"
			j.Error = "worker timeout"
		})
		if err != nil {
			s.logger.Error("transition stalled analysis job to failed", "job_id", id, "error", err)
			continue
		}
		if s.bb.Durable != nil {
			if err := s.bb.Durable.UpdateJobState(ctx, updated.JobID, updated.State, updated.Progress, updated.Description, updated.ResultRef, updated.Error); err != nil {
				s.logger.Warn("mirror job state to postgres", "job_id", id, "error", err)
			}
		}
		_ = s.bb.UntrackRunning(ctx, "analysis", id)
		s.alertOperator(id, "worker timeout")
	}
}

func (s *Sweeper) sweepDataset(ctx context.Context) {
	ids, err := s.bb.RunningIDs(ctx, "dataset")
	if err != nil {
		s.logger.Error("list running dataset loads", "error", err)
		return
	}
	for _, id := range ids {
		status, _, err := getJSON[domain.DatasetLoadingStatus](ctx, s.bb, blackboard.StatusKey(id))
		if err != nil {
			if errors.Is(err, blackboard.ErrNotFound) {
				_ = s.bb.UntrackRunning(ctx, "dataset", id)
			}
			continue
		}
		if status.State != domain.JobStateRunning {
			_ = s.bb.UntrackRunning(ctx, "dataset", id)
			continue
		}
		if time.Since(status.UpdatedAt) < s.datasetTimeout {
			continue
		}
		s.logger.Warn("dataset load stalled, failing", "load_id", id, "last_update", status.UpdatedAt)
		if _, err := casUpdate(ctx, s.bb, blackboard.StatusKey(id), s.statusTTL, func(st *domain.DatasetLoadingStatus) {
			st.State = domain.JobStateFailed
			st.Description = "worker timeout"
		}); err != nil {
			s.logger.Error("transition stalled dataset load to failed", "load_id", id, "error", err)
			continue
		}
		_ = s.bb.UntrackRunning(ctx, "dataset", id)
		s.alertOperator(id, "worker timeout")
	}
}
