package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/broker"
	"github.com/gsaplatform/orchestrator/internal/domain"
	"github.com/gsaplatform/orchestrator/internal/notify"
	"github.com/gsaplatform/orchestrator/internal/report"
)

const defaultReportTimeout = 10 * time.Minute

// artifactWeight is the fraction of total progress each artifact kind
// contributes, per the §4.4 weighting (spreadsheet 0.3, PDF 0.6,
// e-mail 0.1).
var artifactWeight = map[string]float64{
	"XLSX":  0.3,
	"PDF":   0.6,
	"EMAIL": 0.1,
}

// ReportGenerator is the Report Generator role: it reads a completed
// analysis result and produces the requested artifact kinds as
// independent sub-steps, applying the partial-success policy when one
// kind fails but another has already succeeded.
type ReportGenerator struct {
	bb               *blackboard.Blackboard
	br               *broker.Broker
	mailer           *notify.Mailer
	statusTTL        time.Duration
	notifyBaseURL    string
	mailErrorAddress string
	logger           *slog.Logger
}

// NewReportGenerator builds a Report Generator. mailer may be nil when
// no SMTP relay is configured; any EMAIL artifact then fails like any
// other artifact kind.
func NewReportGenerator(bb *blackboard.Blackboard, br *broker.Broker, mailer *notify.Mailer, statusTTL time.Duration, notifyBaseURL, mailErrorAddress string) *ReportGenerator {
	return &ReportGenerator{
		bb:               bb,
		br:               br,
		mailer:           mailer,
		statusTTL:        statusTTL,
		notifyBaseURL:    notifyBaseURL,
		mailErrorAddress: mailErrorAddress,
		logger:           slog.Default().With("component", "report_generator"),
	}
}

// Start subscribes to the report queue and blocks until ctx is
// cancelled.
func (g *ReportGenerator) Start(ctx context.Context) error {
	g.logger.Info("report generator starting")

	err := g.br.Subscribe(ctx, broker.QueueReport, func(_ context.Context, msg *broker.Message) {
		var req domain.ReportRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			g.logger.Error("malformed report message", "error", err)
			_ = msg.Term("malformed payload")
			return
		}

		logger := g.logger.With("job_id", req.ReportJobID, "analysis_job_id", req.AnalysisJobID)
		jobCtx, cancel := context.WithTimeout(context.Background(), defaultReportTimeout)
		defer cancel()

		g.processOne(jobCtx, logger, req, msg)
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	g.logger.Info("report generator shutting down")
	return nil
}

func (g *ReportGenerator) processOne(ctx context.Context, logger *slog.Logger, req domain.ReportRequest, msg *broker.Message) {
	reportJobID := req.ReportJobID
	statusKey := blackboard.StatusKey(reportJobID)

	var result domain.AnalysisResult
	if err := g.bb.GetJSON(ctx, blackboard.ResultMetaKey(req.AnalysisJobID), &result); err != nil {
		g.fail(ctx, logger, statusKey, fmt.Sprintf("analysis result unavailable: %v", err))
		_ = msg.Ack()
		return
	}

	var produced []domain.ReportArtifact
	var failures []string
	progress := 0.0

	for _, kind := range req.Artifacts {
		weight := artifactWeight[kind]
		artifact, err := g.buildArtifact(ctx, reportJobID, kind, result, req.NotifyEmail, produced)
		if err != nil {
			logger.Warn("artifact failed", "kind", kind, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", kind, err))
		} else {
			produced = append(produced, artifact)
		}
		progress += weight
		_ = g.setProgress(ctx, statusKey, progress, produced)
	}

	if len(produced) == 0 {
		message := "all report artifacts failed"
		if len(failures) > 0 {
			message = failures[0]
		}
		g.fail(ctx, logger, statusKey, message)
		if g.mailer != nil && g.mailErrorAddress != "" {
			if err := g.mailer.SendOperatorAlert(g.mailErrorAddress, reportJobID, message); err != nil {
				logger.Warn("operator alert failed", "error", err)
			}
		}
		_ = msg.Ack()
		return
	}

	description := "complete"
	if len(failures) > 0 {
		description = fmt.Sprintf("complete with failures: %s", failures[0])
	}
	if _, err := casUpdate(ctx, g.bb, statusKey, g.statusTTL, func(s *domain.ReportStatus) {
		s.State = domain.JobStateComplete
		s.Progress = 1.0
		s.Description = description
		s.Reports = produced
	}); err != nil {
		logger.Error("transition to complete", "error", err)
		_ = msg.Nack()
		return
	}

	logger.Info("report generation complete", "artifacts", len(produced), "failures", len(failures))
	_ = msg.Ack()
}

func (g *ReportGenerator) buildArtifact(ctx context.Context, jobID, kind string, result domain.AnalysisResult, notifyEmail string, producedSoFar []domain.ReportArtifact) (domain.ReportArtifact, error) {
	switch kind {
	case "XLSX":
		data, err := report.BuildXLSX(result)
		if err != nil {
			return domain.ReportArtifact{}, err
		}
		return g.storeArtifact(ctx, jobID, "analysis.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)

	case "PDF":
		data, err := report.BuildPDF(result.Release, result)
		if err != nil {
			return domain.ReportArtifact{}, err
		}
		return g.storeArtifact(ctx, jobID, "analysis.pdf", "application/pdf", data)

	case "EMAIL":
		if g.mailer == nil {
			return domain.ReportArtifact{}, fmt.Errorf("no SMTP relay configured")
		}
		if notifyEmail == "" {
			return domain.ReportArtifact{}, fmt.Errorf("no notify_email provided")
		}
		links := make(map[string]string, len(producedSoFar))
		for _, a := range producedSoFar {
			links[a.Name] = a.URL
		}
		if err := g.mailer.SendReport(jobID, notifyEmail, links); err != nil {
			return domain.ReportArtifact{}, err
		}
		return domain.ReportArtifact{Name: "EMAIL", URL: "", Mimetype: "message/rfc822"}, nil

	default:
		return domain.ReportArtifact{}, fmt.Errorf("unknown artifact kind %q", kind)
	}
}

func (g *ReportGenerator) storeArtifact(ctx context.Context, jobID, name, mimetype string, data []byte) (domain.ReportArtifact, error) {
	key := blackboard.ReportArtifactKey(jobID, name)
	if err := g.bb.Blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return domain.ReportArtifact{}, fmt.Errorf("store artifact: %w", err)
	}
	artifact := domain.ReportArtifact{
		Name:     name,
		URL:      fmt.Sprintf("%s/0.1/report/%s/%s", g.notifyBaseURL, jobID, name),
		Mimetype: mimetype,
	}
	if err := g.bb.Put(ctx, blackboard.ReportArtifactMetaKey(jobID, name), artifact, 0); err != nil {
		return domain.ReportArtifact{}, fmt.Errorf("store artifact metadata: %w", err)
	}
	return artifact, nil
}

func (g *ReportGenerator) setProgress(ctx context.Context, statusKey string, progress float64, produced []domain.ReportArtifact) error {
	_, err := casUpdate(ctx, g.bb, statusKey, g.statusTTL, func(s *domain.ReportStatus) {
		s.Progress = progress
		s.Reports = produced
	})
	return err
}

func (g *ReportGenerator) fail(ctx context.Context, logger *slog.Logger, statusKey, message string) {
	if _, err := casUpdate(ctx, g.bb, statusKey, g.statusTTL, func(s *domain.ReportStatus) {
		s.State = domain.JobStateFailed
		s.Description = message
	}); err != nil {
		logger.Error("transition to failed", "error", err)
	}
}
