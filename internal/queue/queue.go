package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/repairmind/print-agent/internal/job"
)

// Executor runs one job attempt. A nil error completes the entry; any error
// feeds the retry policy.
type Executor func(ctx context.Context, e Entry) error

type Options struct {
	Path         string
	MaxRetries   int
	RetryDelays  []time.Duration
	DefaultTTL   time.Duration
	SaveDebounce time.Duration
	ScheduleTick time.Duration
	ExpireTick   time.Duration
	HistoryLimit int
	Now          func() time.Time
	Log          *logrus.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if len(o.RetryDelays) == 0 {
		o.RetryDelays = []time.Duration{5 * time.Second, 15 * time.Second, 60 * time.Second}
	}
	if o.DefaultTTL == 0 {
		o.DefaultTTL = 24 * time.Hour
	}
	if o.SaveDebounce == 0 {
		o.SaveDebounce = 200 * time.Millisecond
	}
	if o.ScheduleTick == 0 {
		o.ScheduleTick = 5 * time.Second
	}
	if o.ExpireTick == 0 {
		o.ExpireTick = 60 * time.Second
	}
	if o.HistoryLimit == 0 {
		o.HistoryLimit = 100
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

// Queue is the durable, idempotent job queue. At most one entry per printer
// is processing at any instant; distinct printers run in parallel.
type Queue struct {
	opts Options
	log  *logrus.Entry

	mu          sync.Mutex
	entries     map[string]*Entry
	busy        map[string]bool
	scheduling  bool
	execute     Executor
	listeners   []Listener
	metrics     Metrics
	savePending bool

	ctx    context.Context
	cancel context.CancelFunc
	loopWg sync.WaitGroup
	jobWg  sync.WaitGroup
}

func New(opts Options) (*Queue, error) {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		opts:    opts,
		log:     opts.Log.WithField("component", "queue"),
		entries: make(map[string]*Entry),
		busy:    make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
	if err := q.load(); err != nil {
		// A broken queue file must not keep the agent down.
		q.log.WithError(err).Error("queue state not recovered, starting empty")
	}
	return q, nil
}

func (q *Queue) Subscribe(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

func (q *Queue) SetExecuteCallback(fn Executor) {
	q.mu.Lock()
	q.execute = fn
	q.mu.Unlock()
	q.schedule()
}

// Start launches the retry-scheduling and TTL-expiration tickers.
func (q *Queue) Start() {
	q.loopWg.Add(2)
	go q.tickLoop(q.opts.ScheduleTick, q.schedule)
	go q.tickLoop(q.opts.ExpireTick, q.expire)
	q.schedule()
}

func (q *Queue) tickLoop(interval time.Duration, fn func()) {
	defer q.loopWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Stop halts the tickers, cancels in-flight executor contexts and flushes
// state to disk. It does not wait out running executors.
func (q *Queue) Stop() {
	q.cancel()
	q.loopWg.Wait()
	if err := q.Flush(); err != nil {
		q.log.WithError(err).Error("final queue flush failed")
	}
}

type EnqueueOptions struct {
	Priority job.Priority
	TTL      time.Duration
}

// Enqueue validates and admits a job. It returns false on validation failure
// and on duplicate ids (idempotency); a terminal entry with the same id is
// replaced.
func (q *Queue) Enqueue(j job.Job, opt EnqueueOptions) bool {
	if err := j.Validate(); err != nil {
		q.emit(Event{Type: EventError, Entry: Entry{Job: j}, Err: err})
		return false
	}

	priority := j.EffectivePriority()
	if opt.Priority.Valid() {
		priority = opt.Priority
	}
	ttl := q.opts.DefaultTTL
	if opt.TTL > 0 {
		ttl = opt.TTL
	}

	q.mu.Lock()
	now := q.opts.Now()
	if existing, ok := q.entries[j.ID]; ok {
		if !existing.Status.Terminal() {
			q.metrics.Deduplicated++
			snap := *existing
			q.mu.Unlock()
			q.emit(Event{Type: EventDeduplicated, Entry: snap})
			return false
		}
		delete(q.entries, j.ID)
	}

	e := &Entry{
		Job:               j,
		Status:            StatusQueued,
		Priority:          priority,
		PrinterSystemName: j.PrinterSystemName,
		MaxRetries:        q.opts.MaxRetries,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}
	q.entries[j.ID] = e
	q.metrics.Enqueued++
	q.trimHistoryLocked()
	q.markDirtyLocked()
	snap := *e
	q.mu.Unlock()

	q.emit(Event{Type: EventQueued, Entry: snap})
	q.schedule()
	return true
}

// Cancel transitions a queued entry to cancelled. Processing entries are not
// preempted and terminal entries are left alone.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	e, ok := q.entries[id]
	if !ok || e.Status != StatusQueued {
		q.mu.Unlock()
		return false
	}
	e.Status = StatusCancelled
	e.UpdatedAt = q.opts.Now()
	q.metrics.Cancelled++
	q.markDirtyLocked()
	snap := *e
	q.mu.Unlock()

	q.emit(Event{Type: EventCancelled, Entry: snap})
	return true
}

func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{ActivePrinters: len(q.busy), Metrics: q.metrics}
	for _, e := range q.entries {
		switch e.Status {
		case StatusQueued:
			stats.Queued++
		case StatusProcessing:
			stats.Processing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusExpired:
			stats.Expired++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// GetRecentJobs returns entry snapshots, newest by UpdatedAt first.
func (q *Queue) GetRecentJobs(limit int) []Entry {
	q.mu.Lock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// schedule runs one scheduling pass: eligible queued entries start on idle
// printers, ordered by priority then age. The guard keeps two concurrent
// passes from double-starting a job.
func (q *Queue) schedule() {
	q.mu.Lock()
	if q.scheduling || q.execute == nil {
		q.mu.Unlock()
		return
	}
	q.scheduling = true
	now := q.opts.Now()

	var candidates []*Entry
	for _, e := range q.entries {
		if e.Status != StatusQueued || e.NextRetryAt.After(now) || q.busy[e.PrinterSystemName] {
			continue
		}
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		pi, pj := candidates[i].Priority.Ordinal(), candidates[j].Priority.Ordinal()
		if pi != pj {
			return pi < pj
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	var started []Entry
	exec := q.execute
	for _, e := range candidates {
		if q.busy[e.PrinterSystemName] {
			continue
		}
		q.busy[e.PrinterSystemName] = true
		e.Status = StatusProcessing
		e.UpdatedAt = now
		started = append(started, *e)
	}
	if len(started) > 0 {
		q.markDirtyLocked()
	}
	q.scheduling = false
	q.mu.Unlock()

	for _, snap := range started {
		q.emit(Event{Type: EventProcessing, Entry: snap})
		q.jobWg.Add(1)
		go q.run(exec, snap)
	}
}

func (q *Queue) run(exec Executor, snap Entry) {
	defer q.jobWg.Done()

	err := exec(q.ctx, snap)

	var events []Event
	q.mu.Lock()
	now := q.opts.Now()
	delete(q.busy, snap.PrinterSystemName)
	e, ok := q.entries[snap.Job.ID]
	if ok && e.Status == StatusProcessing {
		e.UpdatedAt = now
		switch {
		case err == nil:
			e.Status = StatusCompleted
			e.Error = ""
			q.metrics.Completed++
			events = append(events, Event{Type: EventCompleted, Entry: *e})
		case e.Retries < e.MaxRetries:
			e.Retries++
			e.NextRetryAt = now.Add(retryDelay(q.opts.RetryDelays, e.Retries))
			e.Status = StatusQueued
			e.Error = err.Error()
			events = append(events, Event{Type: EventRetrying, Entry: *e, Err: err})
		default:
			e.Status = StatusFailed
			e.Error = err.Error()
			q.metrics.Failed++
			events = append(events, Event{Type: EventFailed, Entry: *e, Err: err})
		}
		q.trimHistoryLocked()
		q.markDirtyLocked()
	}
	q.mu.Unlock()

	q.emit(events...)
	q.schedule()
}

func retryDelay(delays []time.Duration, retries int) time.Duration {
	idx := retries - 1
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return delays[idx]
}

// expire transitions queued entries past their TTL.
func (q *Queue) expire() {
	var events []Event
	q.mu.Lock()
	now := q.opts.Now()
	for _, e := range q.entries {
		if e.Status == StatusQueued && e.ExpiresAt.Before(now) {
			e.Status = StatusExpired
			e.Error = "TTL exceeded"
			e.UpdatedAt = now
			q.metrics.Expired++
			events = append(events, Event{Type: EventExpired, Entry: *e})
		}
	}
	if len(events) > 0 {
		q.markDirtyLocked()
	}
	q.mu.Unlock()
	q.emit(events...)
}

func (q *Queue) trimHistoryLocked() {
	var terminal []*Entry
	for _, e := range q.entries {
		if e.Status.Terminal() {
			terminal = append(terminal, e)
		}
	}
	if len(terminal) <= q.opts.HistoryLimit {
		return
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.Before(terminal[j].UpdatedAt)
	})
	for _, e := range terminal[:len(terminal)-q.opts.HistoryLimit] {
		delete(q.entries, e.Job.ID)
	}
}

func (q *Queue) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	listeners := append([]Listener(nil), q.listeners...)
	q.mu.Unlock()
	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}
