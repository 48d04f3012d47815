package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/broker"
	"github.com/gsaplatform/orchestrator/internal/domain"
	"github.com/gsaplatform/orchestrator/internal/kernel"
	"github.com/gsaplatform/orchestrator/internal/notify"
	"github.com/gsaplatform/orchestrator/internal/streaming"
)

// defaultAnalysisTimeout bounds one analysis job regardless of how long
// the shutdown context the process was started with remains valid --
// an in-flight job must not be aborted mid-kernel-run by a rolling
// restart.
const defaultAnalysisTimeout = 30 * time.Minute

// progressUpdateInterval is P_update: the minimum spacing between
// progress writes through to the Blackboard.
const progressUpdateInterval = 2 * time.Second

// analysisWorkItem is the message body published onto the analysis
// queue: the normalized input plus the job_id allocated at admission.
type analysisWorkItem struct {
	JobID string               `json:"job_id"`
	Input domain.AnalysisInput `json:"input"`
}

// AnalysisProcessor is the Analysis Worker role: it pulls one message
// at a time from the analysis queue, dispatches to the kernel bound to
// the request's method_name, and writes the result back to the
// Blackboard.
type AnalysisProcessor struct {
	bb               *blackboard.Blackboard
	br               *broker.Broker
	kernels          *kernel.Registry
	mailer           *notify.Mailer
	mailErrorAddress string
	statusTTL        time.Duration
	resultTTL        time.Duration
	pathwayRelease   string
	logger           *slog.Logger
}

// NewAnalysisProcessor builds an Analysis Worker. mailer may be nil when
// no SMTP relay is configured; operator alerts on promotion to failed
// are then skipped.
func NewAnalysisProcessor(bb *blackboard.Blackboard, br *broker.Broker, kernels *kernel.Registry, mailer *notify.Mailer, mailErrorAddress string, statusTTL, resultTTL time.Duration, pathwayRelease string) *AnalysisProcessor {
	return &AnalysisProcessor{
		bb:               bb,
		br:               br,
		kernels:          kernels,
		mailer:           mailer,
		mailErrorAddress: mailErrorAddress,
		statusTTL:        statusTTL,
		resultTTL:        resultTTL,
		pathwayRelease:   pathwayRelease,
		logger:           slog.Default().With("component", "analysis_worker"),
	}
}

// Start subscribes to the analysis queue and blocks until ctx is
// cancelled.
func (p *AnalysisProcessor) Start(ctx context.Context) error {
	p.logger.Info("analysis worker starting")

	err := p.br.Subscribe(ctx, broker.QueueAnalysis, func(_ context.Context, msg *broker.Message) {
		var work analysisWorkItem
		if err := json.Unmarshal(msg.Payload, &work); err != nil {
			p.logger.Error("malformed analysis message", "error", err)
			_ = msg.Term("malformed payload")
			return
		}

		logger := p.logger.With("job_id", work.JobID)

		jobCtx, cancel := context.WithTimeout(context.Background(), defaultAnalysisTimeout)
		defer cancel()

		p.processOne(jobCtx, logger, work, msg)
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	p.logger.Info("analysis worker shutting down")
	return nil
}

func (p *AnalysisProcessor) processOne(ctx context.Context, logger *slog.Logger, work analysisWorkItem, msg *broker.Message) {
	statusKey := blackboard.StatusKey(work.JobID)

	job, _, err := getJSON[domain.Job](ctx, p.bb, statusKey)
	if err != nil {
		logger.Error("read status before starting", "error", err)
		_ = msg.Nack()
		return
	}
	if job.State != domain.JobStateRunning {
		logger.Warn("stale retry of a terminal job, dropping", "state", job.State)
		_ = msg.Ack()
		return
	}

	if err := p.setDescription(ctx, work.JobID, "Starting analysis", 0); err != nil {
		logger.Error("write starting status", "error", err)
		_ = msg.Nack()
		return
	}

	k, err := p.kernels.Get(work.Input.MethodName)
	if err != nil {
		p.fail(ctx, logger, work.JobID, err.Error())
		_ = msg.Ack()
		return
	}
	if err := k.LoadLibraries(p.pathwayRelease); err != nil {
		p.fail(ctx, logger, work.JobID, err.Error())
		_ = msg.Ack()
		return
	}

	limiter := newRateLimiter(progressUpdateInterval)
	results := make(map[string]string, len(work.Input.Datasets))
	foldChanges := make(map[string]string, len(work.Input.Datasets))

	for i, ds := range work.Input.Datasets {
		ds = mergeDatasetParameters(ds, work.Input.Parameters)

		prepared, err := k.Prepare(ds)
		if err != nil {
			p.fail(ctx, logger, work.JobID, fmt.Sprintf("prepare %s: %v", ds.Name, err))
			_ = msg.Ack()
			return
		}

		baseFraction := float64(i) / float64(len(work.Input.Datasets))
		step := 1.0 / float64(len(work.Input.Datasets))
		progress := func(fraction float64, message string) {
			overall := baseFraction + fraction*step
			if limiter.allow(overall) {
				_ = p.setDescription(ctx, work.JobID, message, overall)
			}
		}

		table, err := k.Process(prepared, progress)
		if err != nil {
			p.fail(ctx, logger, work.JobID, fmt.Sprintf("kernel failure on %s: %v", ds.Name, err))
			_ = msg.Ack()
			return
		}
		results[ds.Name] = table

		fc, err := k.GeneFoldChanges(prepared)
		if err != nil {
			p.fail(ctx, logger, work.JobID, fmt.Sprintf("fold changes on %s: %v", ds.Name, err))
			_ = msg.Ack()
			return
		}
		if fc != "" {
			foldChanges[ds.Name] = fc
		}
	}

	result := domain.AnalysisResult{
		Release:     p.pathwayRelease,
		Results:     results,
		FoldChanges: foldChanges,
	}
	resultBody, err := json.Marshal(result)
	if err != nil {
		logger.Error("marshal result", "error", err)
		_ = msg.Nack()
		return
	}
	if err := p.bb.Put(ctx, blackboard.ResultMetaKey(work.JobID), string(resultBody), p.resultTTL); err != nil {
		logger.Error("write result", "error", err)
		_ = msg.Nack()
		return
	}

	job, err = casUpdate(ctx, p.bb, statusKey, p.statusTTL, func(j *domain.Job) {
		j.State = domain.JobStateComplete
		j.Progress = 1.0
		j.Description = "complete"
		j.ResultRef = blackboard.ResultMetaKey(work.JobID)
	})
	if err != nil {
		logger.Error("transition to complete", "error", err)
		_ = msg.Nack()
		return
	}
	p.mirrorDurable(ctx, logger, job)
	if err := p.bb.UntrackRunning(ctx, "analysis", work.JobID); err != nil {
		logger.Warn("untrack completed job", "error", err)
	}
	p.pushStatus(ctx, work.JobID, domain.JobStateComplete, 1.0, "complete")

	if req := parseReportRequest(work.JobID, work.Input.Parameters); req != nil {
		if err := p.enqueueReport(ctx, req); err != nil {
			logger.Warn("publish report request", "error", err)
		}
	}

	logger.Info("analysis job complete")
	_ = msg.Ack()
}

// enqueueReport allocates the report job's own id, seeds its status
// record, and publishes onto the report queue -- the report job is
// tracked distinctly from the analysis job it references.
func (p *AnalysisProcessor) enqueueReport(ctx context.Context, req *domain.ReportRequest) error {
	reportJobID, err := p.bb.NewJobID(ctx, "report")
	if err != nil {
		return fmt.Errorf("allocate report job id: %w", err)
	}
	req.ReportJobID = reportJobID

	status := domain.ReportStatus{JobID: reportJobID, State: domain.JobStateRunning, Progress: 0, Description: "queued"}
	if err := p.bb.Put(ctx, blackboard.StatusKey(reportJobID), status, p.statusTTL); err != nil {
		return fmt.Errorf("seed report status: %w", err)
	}
	if err := p.br.Publish(ctx, broker.QueueReport, req); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *AnalysisProcessor) fail(ctx context.Context, logger *slog.Logger, jobID, message string) {
	logger.Warn("kernel failure", "message", message)
	job, err := casUpdate(ctx, p.bb, blackboard.StatusKey(jobID), p.statusTTL, func(j *domain.Job) {
		j.State = domain.JobStateFailed
		j.Description = message
		j.Error = message
	})
	if err != nil {
		logger.Error("transition to failed", "error", err)
	} else {
		p.mirrorDurable(ctx, logger, job)
	}
	if err := p.bb.UntrackRunning(ctx, "analysis", jobID); err != nil {
		logger.Warn("untrack failed job", "error", err)
	}
	p.pushStatus(ctx, jobID, domain.JobStateFailed, 0, message)

	if p.mailer != nil && p.mailErrorAddress != "" {
		if err := p.mailer.SendOperatorAlert(p.mailErrorAddress, jobID, message); err != nil {
			logger.Warn("operator alert failed", "error", err)
		}
	}
}

func (p *AnalysisProcessor) setDescription(ctx context.Context, jobID, description string, progress float64) error {
	_, err := casUpdate(ctx, p.bb, blackboard.StatusKey(jobID), p.statusTTL, func(j *domain.Job) {
		j.Description = description
		j.Progress = progress
	})
	if err == nil {
		p.pushStatus(ctx, jobID, domain.JobStateRunning, progress, description)
	}
	return err
}

// mirrorDurable best-effort mirrors a Job status transition already
// committed to Redis into the durable Postgres row; failures here never
// block the worker, since the durable row always trails the hot record.
func (p *AnalysisProcessor) mirrorDurable(ctx context.Context, logger *slog.Logger, job domain.Job) {
	if p.bb.Durable == nil {
		return
	}
	if err := p.bb.Durable.UpdateJobState(ctx, job.JobID, job.State, job.Progress, job.Description, job.ResultRef, job.Error); err != nil {
		logger.Warn("mirror job state to postgres", "error", err)
	}
}

// pushStatus publishes a progress update to the job's Blackboard
// pub/sub channel. The worker process holds no WebSocket hub of its
// own -- the API process bridges this channel into its hub.
func (p *AnalysisProcessor) pushStatus(ctx context.Context, jobID string, state domain.JobState, progress float64, description string) {
	payload, err := json.Marshal(streaming.JobStatusPayload{
		JobID:       jobID,
		State:       string(state),
		Progress:    progress,
		Description: description,
	})
	if err != nil {
		p.logger.Warn("marshal progress payload", "job_id", jobID, "error", err)
		return
	}
	if err := p.bb.Publish(ctx, blackboard.ProgressChannel(jobID), payload); err != nil {
		p.logger.Warn("publish progress", "job_id", jobID, "error", err)
	}
}

// mergeDatasetParameters applies analysis-level dataset-scoped
// parameters as defaults, overridden by any per-dataset setting of the
// same name, per the §4.2 parameter recognition rules.
func mergeDatasetParameters(ds domain.Dataset, analysisParams []domain.Parameter) domain.Dataset {
	merged := make(map[string]domain.Parameter)
	for _, p := range analysisParams {
		if p.Scope == domain.ParameterScopeDataset {
			merged[p.Name] = p
		}
	}
	for _, p := range ds.Parameters {
		merged[p.Name] = p
	}
	out := make([]domain.Parameter, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	ds.Parameters = out
	return ds
}

// parseReportRequest builds a ReportRequest from the common-scoped
// "report_artifacts" / "notify_email" parameters, or returns nil if
// neither was requested.
func parseReportRequest(jobID string, params []domain.Parameter) *domain.ReportRequest {
	var artifacts []string
	var notifyEmail string
	for _, p := range params {
		if p.Scope != domain.ParameterScopeCommon {
			continue
		}
		switch p.Name {
		case "report_artifacts":
			for _, a := range strings.Split(p.Value, ",") {
				a = strings.TrimSpace(a)
				if a != "" {
					artifacts = append(artifacts, a)
				}
			}
		case "notify_email":
			notifyEmail = p.Value
		}
	}
	if len(artifacts) == 0 && notifyEmail == "" {
		return nil
	}
	if notifyEmail != "" {
		found := false
		for _, a := range artifacts {
			if a == "EMAIL" {
				found = true
			}
		}
		if !found {
			artifacts = append(artifacts, "EMAIL")
		}
	}
	return &domain.ReportRequest{AnalysisJobID: jobID, Artifacts: artifacts, NotifyEmail: notifyEmail}
}
