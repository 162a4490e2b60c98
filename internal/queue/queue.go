// Package queue implements the background job facade: a uniform enqueue
// API over per-queue worker pools with bounded concurrency and retries,
// degrading to synchronous inline execution when the queue subsystem is
// unavailable. Call sites keep the same signature in both modes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fixia-backend/internal/config"
)

// Priority orders jobs within the caller's intent; workers do not reorder
// the channel, priority is carried for operators and future schedulers.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Queue names known to the manager.
const (
	QueueEmails    = "emails"
	QueueImages    = "images"
	QueueAnalytics = "analytics"
)

// Job is a unit of background work.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    Priority        `json:"priority"`
	Delay       time.Duration   `json:"delay"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	LastError   string          `json:"lastError,omitempty"`
}

// HandlerFunc executes a job and returns its result.
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

// Result is the outcome of Enqueue. Callers must treat it as a tagged
// union: a Queued job completes later and carries no result, a Sync job
// already ran in the calling goroutine and carries the computed value.
type Result interface {
	isResult()
}

// Queued is returned when the job was handed to a worker pool.
type Queued struct {
	Job *Job
}

func (Queued) isResult() {}

// Sync is returned when the job ran inline in the calling request.
type Sync struct {
	Value any
}

func (Sync) isResult() {}

// Option adjusts how a job is enqueued.
type Option func(*Job)

// WithPriority sets the job priority.
func WithPriority(p Priority) Option {
	return func(j *Job) { j.Priority = p }
}

// WithDelay defers execution by d (durable mode only).
func WithDelay(d time.Duration) Option {
	return func(j *Job) { j.Delay = d }
}

// WithMaxAttempts overrides the configured retry count.
func WithMaxAttempts(n int) Option {
	return func(j *Job) { j.MaxAttempts = n }
}

type workerQueue struct {
	name        string
	concurrency int
	jobs        chan *Job
}

// Manager owns the queues and the handler registry.
type Manager struct {
	cfg      config.QueueConfig
	logger   *zap.Logger
	handlers map[string]HandlerFunc
	queues   map[string]*workerQueue

	// durable is true while the worker pools accept jobs. It starts false,
	// is set once by Start when the subsystem comes up, and is cleared
	// permanently if an enqueue ever fails; after that every call runs
	// inline until the process restarts.
	durable atomic.Bool

	history *historyLog

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewManager builds the manager. brokerReady reports whether the backing
// infrastructure came up at process start; when false the manager never
// enters durable mode and every Enqueue executes inline.
func NewManager(cfg config.QueueConfig, brokerReady bool, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]*workerQueue),
		history:  newHistoryLog(cfg.KeepCompleted, cfg.KeepFailed),
		stopCh:   make(chan struct{}),
	}

	if cfg.Enabled && brokerReady {
		m.queues[QueueEmails] = &workerQueue{name: QueueEmails, concurrency: cfg.EmailConcurrency, jobs: make(chan *Job, 256)}
		m.queues[QueueImages] = &workerQueue{name: QueueImages, concurrency: cfg.ImageConcurrency, jobs: make(chan *Job, 256)}
		m.queues[QueueAnalytics] = &workerQueue{name: QueueAnalytics, concurrency: cfg.AnalyticsConcurrency, jobs: make(chan *Job, 256)}
	} else {
		logger.Warn("job queue subsystem unavailable, jobs will execute synchronously",
			zap.Bool("enabled", cfg.Enabled), zap.Bool("brokerReady", brokerReady))
	}

	return m
}

// Register binds a job type to its handler. Handlers must be registered
// before Start.
func (m *Manager) Register(jobType string, handler HandlerFunc) {
	m.handlers[jobType] = handler
}

// Start launches the worker pools. A manager without queues starts as a
// pure synchronous facade.
func (m *Manager) Start() {
	if len(m.queues) == 0 {
		return
	}
	for _, q := range m.queues {
		for i := 0; i < q.concurrency; i++ {
			m.wg.Add(1)
			go m.worker(q)
		}
	}
	m.durable.Store(true)
	m.logger.Info("job queues started",
		zap.Int("emailConcurrency", m.cfg.EmailConcurrency),
		zap.Int("imageConcurrency", m.cfg.ImageConcurrency),
		zap.Int("analyticsConcurrency", m.cfg.AnalyticsConcurrency))
}

// Stop drains the workers. Jobs still in channels are abandoned.
func (m *Manager) Stop(ctx context.Context) {
	close(m.stopCh)
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("job queue shutdown timed out")
	}
}

// Durable reports whether jobs are currently enqueued to worker pools.
func (m *Manager) Durable() bool {
	return m.durable.Load()
}

// Enqueue submits a job. In durable mode the job is queued and a Queued
// handle returns immediately; the caller must not expect a result value.
// If the subsystem never initialized, or queueing fails, the handler runs
// synchronously in the calling goroutine and a Sync result carries its
// value — and handler errors propagate directly to the caller, with no
// retry, since there is no queue to retry against.
func (m *Manager) Enqueue(ctx context.Context, queueName, jobType string, payload any, opts ...Option) (Result, error) {
	handler, ok := m.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %q", jobType)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("job payload not serializable: %w", err)
	}

	job := &Job{
		ID:          uuid.New().String(),
		Queue:       queueName,
		Type:        jobType,
		Payload:     data,
		Priority:    PriorityNormal,
		MaxAttempts: m.cfg.MaxAttempts,
		EnqueuedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(job)
	}

	if m.durable.Load() {
		if q, ok := m.queues[queueName]; ok {
			if m.dispatch(q, job) {
				return Queued{Job: job}, nil
			}
			// Queueing failed; remember that durable mode is gone so
			// later calls skip straight to the synchronous path.
			m.durable.Store(false)
			m.logger.Error("enqueue failed, switching to synchronous job execution",
				zap.String("queue", queueName), zap.String("type", jobType))
		}
	}

	value, err := handler(ctx, job)
	if err != nil {
		return nil, err
	}
	return Sync{Value: value}, nil
}

func (m *Manager) dispatch(q *workerQueue, job *Job) bool {
	if job.Delay > 0 {
		time.AfterFunc(job.Delay, func() {
			select {
			case q.jobs <- job:
			default:
				m.logger.Error("delayed job dropped, queue full",
					zap.String("queue", q.name), zap.String("job", job.ID))
			}
		})
		return true
	}
	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

func (m *Manager) worker(q *workerQueue) {
	defer m.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			m.run(q, job)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) run(q *workerQueue, job *Job) {
	handler := m.handlers[job.Type]
	job.Attempts++

	value, err := handler(context.Background(), job)
	if err == nil {
		m.history.recordCompleted(job, value)
		return
	}

	job.LastError = err.Error()
	if job.Attempts >= job.MaxAttempts {
		m.history.recordFailed(job)
		m.logger.Error("job failed permanently",
			zap.String("queue", q.name), zap.String("job", job.ID),
			zap.String("type", job.Type), zap.Int("attempts", job.Attempts), zap.Error(err))
		return
	}

	backoff := m.cfg.BackoffBase << (job.Attempts - 1)
	m.logger.Warn("job failed, retrying",
		zap.String("queue", q.name), zap.String("job", job.ID),
		zap.Int("attempt", job.Attempts), zap.Duration("backoff", backoff), zap.Error(err))
	time.AfterFunc(backoff, func() {
		select {
		case q.jobs <- job:
		default:
			m.history.recordFailed(job)
		}
	})
}

// CompletedJobs returns the bounded history of completed jobs, newest last.
func (m *Manager) CompletedJobs() []JobRecord {
	return m.history.completedSnapshot()
}

// FailedJobs returns the bounded history of permanently failed jobs.
func (m *Manager) FailedJobs() []JobRecord {
	return m.history.failedSnapshot()
}

// JobRecord is a retained record of a finished job.
type JobRecord struct {
	Job        Job       `json:"job"`
	Result     any       `json:"result,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

// historyLog retains bounded completed/failed job records, trimmed by
// count, not size.
type historyLog struct {
	mu            sync.Mutex
	completed     []JobRecord
	failed        []JobRecord
	keepCompleted int
	keepFailed    int
}

func newHistoryLog(keepCompleted, keepFailed int) *historyLog {
	return &historyLog{keepCompleted: keepCompleted, keepFailed: keepFailed}
}

func (h *historyLog) recordCompleted(job *Job, result any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, JobRecord{Job: *job, Result: result, FinishedAt: time.Now()})
	if len(h.completed) > h.keepCompleted {
		h.completed = h.completed[len(h.completed)-h.keepCompleted:]
	}
}

func (h *historyLog) recordFailed(job *Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, JobRecord{Job: *job, FinishedAt: time.Now()})
	if len(h.failed) > h.keepFailed {
		h.failed = h.failed[len(h.failed)-h.keepFailed:]
	}
}

func (h *historyLog) completedSnapshot() []JobRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]JobRecord, len(h.completed))
	copy(out, h.completed)
	return out
}

func (h *historyLog) failedSnapshot() []JobRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]JobRecord, len(h.failed))
	copy(out, h.failed)
	return out
}
