package services

import (
	"context"
	"fmt"
	"time"

	"github.com/comadj/car-system/pkg/logger"
)

// ReportJobService connects the HTTP trigger, the task queue and the job
// tracker around one pipeline run.
type ReportJobService struct {
	tracker   *JobTracker
	queue     TaskQueue
	generator ReportGenerator
	timeout   time.Duration
}

func NewReportJobService(tracker *JobTracker, queue TaskQueue, generator ReportGenerator, timeout time.Duration) *ReportJobService {
	return &ReportJobService{
		tracker:   tracker,
		queue:     queue,
		generator: generator,
		timeout:   timeout,
	}
}

func (s *ReportJobService) Tracker() *JobTracker {
	return s.tracker
}

// StartAsync registers a job and enqueues its task. The job id is returned
// before any pipeline work starts.
func (s *ReportJobService) StartAsync(userID *uint) (string, error) {
	job, err := s.tracker.Create()
	if err != nil {
		return "", err
	}
	if err := s.queue.Enqueue(&ReportTask{JobID: job.ID, RequestedBy: userID}); err != nil {
		err = fmt.Errorf("enqueue report task: %w", err)
		if ferr := s.tracker.Fail(job.ID, err); ferr != nil {
			logger.Warnf("[ReportJob] mark %s failed: %v", job.ID, ferr)
		}
		return "", err
	}
	return job.ID, nil
}

// Process runs the pipeline for task and records the outcome on its job.
func (s *ReportJobService) Process(ctx context.Context, task *ReportTask) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.generator.Generate(ctx, s.tracker.ProgressFunc(task.JobID))
	if err != nil {
		if ferr := s.tracker.Fail(task.JobID, err); ferr != nil {
			logger.Warnf("[ReportJob] mark %s failed: %v", task.JobID, ferr)
		}
		return err
	}
	if err := s.tracker.Complete(task.JobID, report.ID); err != nil {
		logger.Warnf("[ReportJob] mark %s completed: %v", task.JobID, err)
	}
	return nil
}
