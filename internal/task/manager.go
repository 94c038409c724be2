package task

import (
	"fmt"
	"time"

	"github.com/blues/cfs-escrow/internal/config"
	"github.com/blues/cfs-escrow/internal/logger"
	"github.com/blues/cfs-escrow/internal/settlement"
	"github.com/go-co-op/gocron/v2"
)

// Job is a periodic background task.
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// Manager owns the scheduler and its registered jobs.
type Manager struct {
	scheduler gocron.Scheduler
	jobs      []Job
}

// NewManager creates a manager with the settlement job registered.
func NewManager(dispatcher *settlement.Dispatcher, cfg config.TaskConfig) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	m := &Manager{scheduler: s}

	interval := time.Duration(cfg.Interval) * time.Second
	if err := m.Register(NewSettlementJob(dispatcher, interval)); err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	return m, nil
}

// Register adds a job. Overlapping runs of the same job are skipped.
func (m *Manager) Register(job Job) error {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.GetName(), err)
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *Manager) Start() {
	m.scheduler.Start()
	logger.Info("Task manager started with %d jobs", len(m.jobs))
}

func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
