package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/shiftledger/shiftledger/internal/jobs"
	"github.com/shiftledger/shiftledger/internal/report"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportWarmupJob pre-populates the default report caches so the first
// dashboard hit after an allowance load is served warm.
type ReportWarmupJob struct {
	Reports *report.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(reports *report.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := j.now()
	logger.Info("starting report warmup")

	if err := j.Reports.WarmDefaults(ctx); err != nil {
		resultErr = err
		logger.Error("warm defaults", slog.Any("error", err))
		return resultErr
	}

	clients := payload.Clients
	if len(clients) == 0 {
		var err error
		clients, err = j.Reports.Clients(ctx)
		if err != nil {
			resultErr = err
			logger.Error("list clients", slog.Any("error", err))
			return resultErr
		}
	}

	warmed := 0
	for _, client := range clients {
		clientCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		_, err := j.Reports.ClientAnalytics(clientCtx, report.Query{Clients: []string{client}})
		cancel()
		if err != nil {
			if errors.Is(err, report.ErrNoData) {
				continue
			}
			resultErr = err
			logger.Error("warm client", slog.String("client", client), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}
	j.metrics().AddWarmed("client_analytics", warmed)

	logger.Info("completed report warmup",
		slog.Int("clients", warmed),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportWarmup))
}

func (j *ReportWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// ReportInvalidateJob drops every cached report after an allowance or rate
// load changes the underlying data.
type ReportInvalidateJob struct {
	Reports *report.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReportInvalidateJob wires dependencies for the invalidation handler.
func NewReportInvalidateJob(reports *report.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportInvalidateJob {
	return &ReportInvalidateJob{Reports: reports, Logger: logger, Metrics: metrics}
}

// Handle processes cache invalidation tasks.
func (j *ReportInvalidateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("report invalidate: handler not configured")
	}
	var payload ReportInvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskReportInvalidate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := j.Reports.Invalidate(ctx); err != nil {
		resultErr = err
		logger.Error("invalidate report cache", slog.Any("error", err))
		return resultErr
	}
	logger.Info("report cache invalidated", slog.String("reason", payload.Reason))
	return resultErr
}
