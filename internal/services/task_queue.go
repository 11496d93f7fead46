package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/comadj/car-system/internal/config"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeReportGenerate = "report:generate"
)

// ReportTask asks a worker to run the weekly report pipeline for a tracked job.
type ReportTask struct {
	JobID       string `json:"job_id"`
	RequestedBy *uint  `json:"requested_by,omitempty"`
}

type TaskProcessor func(context.Context, *ReportTask) error

// TaskQueue hands report tasks to a worker.
type TaskQueue interface {
	Enqueue(task *ReportTask) error
	// IsAsync returns true if tasks leave the process through Redis
	IsAsync() bool
	Close() error
}

// NewTaskQueue returns an asynq queue when Redis is enabled and reachable,
// otherwise an in-process queue.
func NewTaskQueue(cfg *config.RedisConfig) TaskQueue {
	if !cfg.Enabled {
		logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
		return NewSyncQueue()
	}
	queue, err := NewAsyncQueue(cfg)
	if err != nil {
		logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
		return NewSyncQueue()
	}
	logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Addr)
	return queue
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)
	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

// Enqueue pushes the task without retries; a failed run is final for its job.
func (q *AsyncQueue) Enqueue(task *ReportTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeReportGenerate, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("reports"),
		asynq.TaskID(task.JobID),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Hour),
	)
	if err != nil {
		return err
	}

	logger.Infof("[TaskQueue] Task enqueued: id=%s, queue=%s", info.ID, info.Queue)
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs tasks on a goroutine in this process.
type SyncQueue struct {
	processor TaskProcessor
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor TaskProcessor) {
	q.processor = processor
}

func (q *SyncQueue) Enqueue(task *ReportTask) error {
	if q.processor == nil {
		logger.Warnf("[TaskQueue] no processor set, task %s dropped", task.JobID)
		return nil
	}

	go func() {
		if err := q.processor(context.Background(), task); err != nil {
			logger.Warnf("[TaskQueue] task %s failed: %v", task.JobID, err)
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}
