package daemon

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"converter/internal/parsers"
	"converter/internal/syncer"
)

var (
	// ErrQueueFull means the bounded queue is at capacity.
	ErrQueueFull = errors.New("task queue is full")
	// ErrDuplicateTask means an equivalent task is already pending or
	// running.
	ErrDuplicateTask = errors.New("duplicate task")
)

// Task is one queued sync request.
type Task struct {
	ID         string
	ReceiverDB string
	CatalogDB  string
	ParserName string
	BatchSize  int
	MaxBatches int
	RunID      string
	Source     string
	EnqueuedAt time.Time
}

// DedupeKey identifies equivalent tasks: same receiver, same catalog,
// same parser. At most one such task is pending or running at a time.
func (t Task) DedupeKey() string {
	return t.ReceiverDB + "|" + t.CatalogDB + "|" + parsers.CanonicalName(t.ParserName)
}

// Runner executes one sync job. *syncer.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, job syncer.Job) (syncer.Report, error)
}

// Result is the recorded outcome of the most recent task.
type Result struct {
	TaskID     string        `json:"task_id"`
	ParserName string        `json:"parser_name"`
	RunID      string        `json:"run_id,omitempty"`
	Report     syncer.Report `json:"report"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Counters are the lifetime totals of the queue.
type Counters struct {
	Enqueued   int `json:"enqueued"`
	Duplicates int `json:"duplicates"`
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
}

// Snapshot is the queue state reported by /health.
type Snapshot struct {
	Worker     string   `json:"worker"`
	QueueDepth int      `json:"queue_depth"`
	Counters   Counters `json:"counters"`
	LastResult *Result  `json:"last_result,omitempty"`
}

// Queue is a bounded FIFO with per-key dedup, drained by a single
// worker goroutine.
type Queue struct {
	runner Runner
	tasks  chan Task

	mu         sync.Mutex
	keys       map[string]struct{}
	processing bool
	counters   Counters
	lastResult *Result

	wg sync.WaitGroup
}

func NewQueue(capacity int, runner Runner) *Queue {
	if capacity <= 0 {
		capacity = 16
	}
	return &Queue{
		runner: runner,
		tasks:  make(chan Task, capacity),
		keys:   map[string]struct{}{},
	}
}

// Enqueue accepts the task or reports why it cannot. The dedup key is
// held until the task finishes, so re-triggering a running sync is
// rejected too.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := task.DedupeKey()
	if _, exists := q.keys[key]; exists {
		q.counters.Duplicates++
		return ErrDuplicateTask
	}

	select {
	case q.tasks <- task:
		q.keys[key] = struct{}{}
		q.counters.Enqueued++
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the worker. It exits when ctx is cancelled; Wait
// blocks until then.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-q.tasks:
				q.runTask(ctx, task)
			}
		}
	}()
}

func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) runTask(ctx context.Context, task Task) {
	q.mu.Lock()
	q.processing = true
	q.mu.Unlock()

	startedAt := time.Now().UTC()
	log.Printf("daemon: task %s started parser=%s run_id=%s", task.ID, task.ParserName, task.RunID)

	report, err := q.runner.Run(ctx, syncer.Job{
		ReceiverDB: task.ReceiverDB,
		CatalogDB:  task.CatalogDB,
		ParserName: task.ParserName,
		BatchSize:  task.BatchSize,
		MaxBatches: task.MaxBatches,
	})

	result := &Result{
		TaskID:     task.ID,
		ParserName: parsers.CanonicalName(task.ParserName),
		RunID:      task.RunID,
		Report:     report,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		result.Error = err.Error()
		log.Printf("daemon: task %s failed: %v", task.ID, err)
	} else {
		log.Printf("daemon: task %s done processed=%d failed=%d batches=%d",
			task.ID, report.Processed, report.Failed, report.Batches)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.keys, task.DedupeKey())
	q.processing = false
	q.lastResult = result
	if err != nil {
		q.counters.Failed++
	} else {
		q.counters.Processed++
	}
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	worker := "idle"
	if q.processing {
		worker = "processing"
	}
	snapshot := Snapshot{
		Worker:     worker,
		QueueDepth: len(q.tasks),
		Counters:   q.counters,
	}
	if q.lastResult != nil {
		result := *q.lastResult
		snapshot.LastResult = &result
	}
	return snapshot
}
