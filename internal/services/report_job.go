package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/comadj/car-system/pkg/logger"
	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStarted    JobStatus = "started"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Progress steps reported by the pipeline.
const (
	StepInitializing = "initializing"
	StepLoadingData  = "loading_data"
	StepAnalyzing    = "analyzing"
	StepSaving       = "saving"
	StepCompleted    = "completed"
	StepFailed       = "failed"
)

const (
	// JobRetention is how long a finished job stays readable.
	JobRetention = 10 * time.Minute
	// JobTombstoneRetention is how long an expired id keeps answering
	// Expired instead of NotFound.
	JobTombstoneRetention = 24 * time.Hour

	jobSweepInterval = time.Minute
)

type JobProgress struct {
	CurrentStep        string `json:"currentStep"`
	TotalCompanies     int    `json:"totalCompanies"`
	CompletedCompanies int    `json:"completedCompanies"`
	CurrentCompany     string `json:"currentCompany"`
}

type ReportJob struct {
	ID        string      `json:"id"`
	Status    JobStatus   `json:"status"`
	StartTime time.Time   `json:"startTime"`
	EndTime   *time.Time  `json:"endTime"`
	Progress  JobProgress `json:"progress"`
	Result    *uint       `json:"result"`
	Error     string      `json:"error,omitempty"`
}

// JobSnapshot is a job as returned to API callers.
type JobSnapshot struct {
	ReportJob
	Duration int64 `json:"duration"`
}

type JobLookup int

const (
	JobFound JobLookup = iota
	JobNotFound
	JobExpired
)

// JobStore persists report jobs. Delete must leave a tombstone so that
// IsExpired reports true for the id afterwards.
type JobStore interface {
	Save(job *ReportJob) error
	Load(id string) (*ReportJob, bool, error)
	Delete(id string) error
	IsExpired(id string) bool
	List() ([]*ReportJob, error)
}

// JobTracker owns the lifecycle of asynchronous report jobs.
type JobTracker struct {
	store    JobStore
	now      func() time.Time
	mu       sync.Mutex
	listener func(*JobSnapshot)
}

func NewJobTracker(store JobStore, clock func() time.Time) *JobTracker {
	if clock == nil {
		clock = time.Now
	}
	if store == nil {
		store = NewMemoryJobStore(clock)
	}
	return &JobTracker{store: store, now: clock}
}

// SetListener installs fn to receive a snapshot after every job change.
func (t *JobTracker) SetListener(fn func(*JobSnapshot)) {
	t.mu.Lock()
	t.listener = fn
	t.mu.Unlock()
}

func (t *JobTracker) notify(job *ReportJob) {
	if t.listener != nil {
		t.listener(t.snapshot(job, t.now()))
	}
}

// NewJobID returns report_{unixMillis}_{8 hex}.
func NewJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("report_%d_%s", now.UnixMilli(), suffix)
}

func (t *JobTracker) Create() (*ReportJob, error) {
	now := t.now()
	job := &ReportJob{
		ID:        NewJobID(now),
		Status:    JobStarted,
		StartTime: now,
		Progress:  JobProgress{CurrentStep: StepInitializing},
	}
	if err := t.store.Save(job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	t.mu.Lock()
	t.notify(job)
	t.mu.Unlock()
	logger.Infof("[ReportJob] created %s", job.ID)
	return job, nil
}

// Update applies fn to the stored job. Terminal jobs are left unchanged.
func (t *JobTracker) Update(id string, fn func(*ReportJob)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok, err := t.store.Load(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if job.Status.Terminal() {
		return nil
	}
	fn(job)
	if err := t.store.Save(job); err != nil {
		return err
	}
	t.notify(job)
	return nil
}

// ProgressFunc returns a pipeline progress callback bound to job id.
func (t *JobTracker) ProgressFunc(id string) ProgressFunc {
	return func(p JobProgress) {
		err := t.Update(id, func(job *ReportJob) {
			job.Status = JobInProgress
			job.Progress = p
		})
		if err != nil {
			logger.Warnf("[ReportJob] progress update for %s failed: %v", id, err)
		}
	}
}

func (t *JobTracker) Complete(id string, result uint) error {
	return t.finish(id, func(job *ReportJob) {
		job.Status = JobCompleted
		job.Result = &result
		job.Progress.CurrentStep = StepCompleted
	})
}

func (t *JobTracker) Fail(id string, cause error) error {
	msg := "보고서 생성 중 오류가 발생했습니다."
	if cause != nil && cause.Error() != "" {
		msg = cause.Error()
	}
	return t.finish(id, func(job *ReportJob) {
		job.Status = JobFailed
		job.Error = msg
		job.Progress.CurrentStep = StepFailed
	})
}

func (t *JobTracker) finish(id string, fn func(*ReportJob)) error {
	end := t.now()
	err := t.Update(id, func(job *ReportJob) {
		fn(job)
		job.EndTime = &end
	})
	if err == nil {
		logger.Infof("[ReportJob] %s finished", id)
	}
	return err
}

// Get returns the job snapshot. A finished job older than JobRetention is
// removed on read and reported as expired.
func (t *JobTracker) Get(id string) (*JobSnapshot, JobLookup) {
	job, ok, err := t.store.Load(id)
	if err != nil {
		logger.Warnf("[ReportJob] load %s failed: %v", id, err)
		return nil, JobNotFound
	}
	if !ok {
		if t.store.IsExpired(id) {
			return nil, JobExpired
		}
		return nil, JobNotFound
	}
	now := t.now()
	if t.expired(job, now) {
		if err := t.store.Delete(id); err != nil {
			logger.Warnf("[ReportJob] delete %s failed: %v", id, err)
		}
		return nil, JobExpired
	}
	return t.snapshot(job, now), JobFound
}

// Active lists started and in-progress jobs, oldest first.
func (t *JobTracker) Active() []*JobSnapshot {
	jobs, err := t.store.List()
	if err != nil {
		logger.Warnf("[ReportJob] list failed: %v", err)
		return nil
	}
	now := t.now()
	active := make([]*JobSnapshot, 0)
	for _, job := range jobs {
		if !job.Status.Terminal() {
			active = append(active, t.snapshot(job, now))
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartTime.Before(active[j].StartTime) })
	return active
}

// Sweep deletes every expired job and returns how many were removed.
func (t *JobTracker) Sweep() int {
	jobs, err := t.store.List()
	if err != nil {
		logger.Warnf("[ReportJob] sweep list failed: %v", err)
		return 0
	}
	now := t.now()
	removed := 0
	for _, job := range jobs {
		if !t.expired(job, now) {
			continue
		}
		if err := t.store.Delete(job.ID); err != nil {
			logger.Warnf("[ReportJob] sweep delete %s failed: %v", job.ID, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Debugf("[ReportJob] swept %d expired jobs", removed)
	}
	return removed
}

// StartSweeper runs Sweep every minute until ctx is done.
func (t *JobTracker) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(jobSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

func (t *JobTracker) expired(job *ReportJob, now time.Time) bool {
	if !job.Status.Terminal() {
		return false
	}
	end := job.StartTime
	if job.EndTime != nil {
		end = *job.EndTime
	}
	return now.Sub(end) > JobRetention
}

func (t *JobTracker) snapshot(job *ReportJob, now time.Time) *JobSnapshot {
	end := now
	if job.EndTime != nil {
		end = *job.EndTime
	}
	return &JobSnapshot{
		ReportJob: *job,
		Duration:  int64(math.Round(end.Sub(job.StartTime).Seconds())),
	}
}

// MemoryJobStore keeps jobs in process memory.
type MemoryJobStore struct {
	mu         sync.RWMutex
	jobs       map[string]ReportJob
	tombstones map[string]time.Time
	now        func() time.Time
}

func NewMemoryJobStore(clock func() time.Time) *MemoryJobStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryJobStore{
		jobs:       make(map[string]ReportJob),
		tombstones: make(map[string]time.Time),
		now:        clock,
	}
}

func (s *MemoryJobStore) Save(job *ReportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryJobStore) Load(id string) (*ReportJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false, nil
	}
	return &job, true, nil
}

func (s *MemoryJobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	now := s.now()
	s.tombstones[id] = now
	for k, at := range s.tombstones {
		if now.Sub(at) > JobTombstoneRetention {
			delete(s.tombstones, k)
		}
	}
	return nil
}

func (s *MemoryJobStore) IsExpired(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.tombstones[id]
	return ok && s.now().Sub(at) <= JobTombstoneRetention
}

func (s *MemoryJobStore) List() ([]*ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]*ReportJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		j := job
		jobs = append(jobs, &j)
	}
	return jobs, nil
}
