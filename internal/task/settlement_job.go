package task

import (
	"context"
	"time"

	"github.com/blues/cfs-escrow/internal/logger"
	"github.com/blues/cfs-escrow/internal/settlement"
	"github.com/go-co-op/gocron/v2"
)

// SettlementJob drains the settlement outbox on a fixed interval.
type SettlementJob struct {
	dispatcher *settlement.Dispatcher
	interval   time.Duration
}

// NewSettlementJob creates a job that runs dispatcher every interval.
func NewSettlementJob(dispatcher *settlement.Dispatcher, interval time.Duration) *SettlementJob {
	return &SettlementJob{dispatcher: dispatcher, interval: interval}
}

func (j *SettlementJob) GetName() string {
	return "settlement_dispatcher"
}

func (j *SettlementJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute runs one dispatch, bounded by the job interval.
func (j *SettlementJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	summary, err := j.dispatcher.Dispatch(ctx)
	if err != nil {
		logger.Error("Settlement task failed: %v", err)
		return
	}
	if summary.Settled+summary.Retried+summary.Failed > 0 {
		logger.Info("Settlement task completed. Settled %d, retrying %d, failed %d",
			summary.Settled, summary.Retried, summary.Failed)
	}
}
