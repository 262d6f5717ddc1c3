// Package jobs contains the asynq background workloads: report cache warmup
// and ingest-side cache invalidation.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportWarmup pre-computes the default report responses.
	TaskReportWarmup = "report:warmup"
	// TaskReportInvalidate drops cached reports after an allowance load.
	TaskReportInvalidate = "report:invalidate"
)

// ReportWarmupPayload scopes a warmup run. An empty client list warms the
// default responses plus every known client's drilldown.
type ReportWarmupPayload struct {
	TaskID  string   `json:"task_id,omitempty"`
	Clients []string `json:"clients,omitempty"`
}

// NewReportWarmupTask constructs a warmup task.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}

// ReportInvalidatePayload carries the reason for auditability in logs.
type ReportInvalidatePayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewReportInvalidateTask constructs an invalidation task.
func NewReportInvalidateTask(payload ReportInvalidatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportInvalidate, data), nil
}
