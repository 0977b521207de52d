package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairmind/print-agent/internal/job"
)

func testJob(id, printer string) job.Job {
	return job.Job{
		ID:                id,
		PrinterSystemName: printer,
		DocumentType:      job.DocRaw,
		Content:           json.RawMessage(`{"rawData":"X"}`),
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 64)}
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) wait(t *testing.T, want EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func newTestQueue(t *testing.T, opts Options) (*Queue, *recorder) {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "job-queue.json")
	}
	if len(opts.RetryDelays) == 0 {
		opts.RetryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	}
	if opts.ScheduleTick == 0 {
		opts.ScheduleTick = 5 * time.Millisecond
	}
	if opts.ExpireTick == 0 {
		opts.ExpireTick = time.Hour
	}
	q, err := New(opts)
	require.NoError(t, err)
	rec := newRecorder()
	q.Subscribe(rec.listen)
	t.Cleanup(q.Stop)
	return q, rec
}

func TestEnqueueValidation(t *testing.T) {
	q, rec := newTestQueue(t, Options{})

	ok := q.Enqueue(job.Job{ID: "J1", DocumentType: job.DocRaw}, EnqueueOptions{})
	assert.False(t, ok)
	ev := rec.wait(t, EventError)
	assert.ErrorIs(t, ev.Err, job.ErrMissingPrinter)

	ok = q.Enqueue(job.Job{ID: "J2", PrinterSystemName: "P1", DocumentType: "scroll"}, EnqueueOptions{})
	assert.False(t, ok)

	assert.Equal(t, 0, q.GetStats().Queued)
}

func TestEnqueueIdempotency(t *testing.T) {
	q, rec := newTestQueue(t, Options{})

	require.True(t, q.Enqueue(testJob("J1", "P1"), EnqueueOptions{}))
	rec.wait(t, EventQueued)

	before := q.GetStats()
	assert.False(t, q.Enqueue(testJob("J1", "P1"), EnqueueOptions{}))
	ev := rec.wait(t, EventDeduplicated)
	assert.Equal(t, "J1", ev.Entry.Job.ID)

	after := q.GetStats()
	assert.Equal(t, before.Queued, after.Queued)
	assert.Equal(t, int64(1), after.Metrics.Deduplicated)
}

func TestEnqueueReplacesTerminalEntry(t *testing.T) {
	q, rec := newTestQueue(t, Options{})
	q.SetExecuteCallback(func(ctx context.Context, e Entry) error { return nil })

	require.True(t, q.Enqueue(testJob("J1", "P1"), EnqueueOptions{}))
	rec.wait(t, EventCompleted)

	require.True(t, q.Enqueue(testJob("J1", "P1"), EnqueueOptions{}))
	rec.wait(t, EventCompleted)

	stats := q.GetStats()
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, int64(2), stats.Metrics.Completed)
}

func TestHappyPathEventOrder(t *testing.T) {
	q, rec := newTestQueue(t, Options{})
	q.SetExecuteCallback(func(ctx context.Context, e Entry) error { return nil })

	require.True(t, q.Enqueue(testJob("J1", "TM-T88V"), EnqueueOptions{}))
	rec.wait(t, EventCompleted)

	types := rec.types()
	assert.Equal(t, []EventType{EventQueued, EventProcessing, EventCompleted}, types)

	stats := q.GetStats()
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.ActivePrinters)
}

func TestRetryThenSuccess(t *testing.T) {
	q, rec := newTestQueue(t, Options{})

	var attempts int
	var mu sync.Mutex
	q.SetExecuteCallback(func(ctx context.Context, e Entry) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("thermal printer not connected")
		}
		return nil
	})
	q.Start()

	require.True(t, q.Enqueue(testJob("J1", "P1"), EnqueueOptions{}))
	retry := rec.wait(t, EventRetrying)
	assert.Equal(t, 1, retry.Entry.Retries)
	assert.Equal(t, "thermal printer not connected", retry.Entry.Error)

	done := rec.wait(t, EventCompleted)
	assert.Empty(t, done.Entry.Error)

	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestMaxRetriesExhaustedFails(t *testing.T) {
	q, rec := newTestQueue(t, Options{MaxRetries: 2})
	q.SetExecuteCallback(func(ctx context.Context, e Entry) error {
		return errors.New("boom")
	})
	q.Start()

	require.True(t, q.Enqueue(testJob("J1", "P1"), EnqueueOptions{}))
	failed := rec.wait(t, EventFailed)

	assert.Equal(t, 2, failed.Entry.Retries)
	assert.Equal(t, failed.Entry.MaxRetries, failed.Entry.Retries)
	assert.Equal(t, "boom", failed.Entry.Error)
	assert.Equal(t, 1, q.GetStats().Failed)
}

func TestPerPrinterSerialization(t *testing.T) {
	q, rec := newTestQueue(t, Options{})

	var mu sync.Mutex
	inFlight := map[string]int{}
	maxInFlight := 0
	q.SetExecuteCallback(func(ctx context.Context, e Entry) error {
		mu.Lock()
		inFlight[e.PrinterSystemName]++
		if inFlight[e.PrinterSystemName] > maxInFlight {
			maxInFlight = inFlight[e.PrinterSystemName]
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight[e.PrinterSystemName]--
		mu.Unlock()
		return nil
	})
	q.Start()

	for i := 0; i < 4; i++ {
		require.True(t, q.Enqueue(testJob(fmt.Sprintf("J%d", i), "P1"), EnqueueOptions{}))
	}
	for i := 0; i < 4; i++ {
		rec.wait(t, EventCompleted)
	}

	mu.Lock()
	assert.Equal(t, 1, maxInFlight, "only one job per printer may process at once")
	mu.Unlock()
}

func TestCrossPrinterParallelism(t *testing.T) {
	q, rec := newTestQueue(t, Options{})

	release := make(chan struct{})
	started := make(chan string, 2)
	q.SetExecuteCallback(func(ctx context.Context, e Entry) error {
		started <- e.PrinterSystemName
		<-release
		return nil
	})

	require.True(t, q.Enqueue(testJob("JA", "P1"), EnqueueOptions{}))
	require.True(t, q.Enqueue(testJob("JB", "P2"), EnqueueOptions{}))

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("both printers should start within one scheduling pass")
		}
	}

	stats := q.GetStats()
	assert.Equal(t, 2, stats.Processing)
	assert.Equal(t, 2, stats.ActivePrinters)

	close(release)
	rec.wait(t, EventCompleted)
	rec.wait(t, EventCompleted)
}

func TestPriorityOvertaking(t *testing.T) {
	q, rec := newTestQueue(t, Options{})

	// Both queued before any executor exists; the urgent one must run first
	// despite its later createdAt.
	normal := testJob("J_normal", "P1")
	require.True(t, q.Enqueue(normal, EnqueueOptions{}))
	urgent := testJob("J_urgent", "P1")
	urgent.Priority = job.PriorityUrgent
	require.True(t, q.Enqueue(urgent, EnqueueOptions{}))

	var mu sync.Mutex
	var order []string
	q.SetExecuteCallback(func(ctx context.Context, e Entry) error {
		mu.Lock()
		order = append(order, e.Job.ID)
		mu.Unlock()
		return nil
	})

	rec.wait(t, EventCompleted)
	rec.wait(t, EventCompleted)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"J_urgent", "J_normal"}, order)
}

func TestCancelQueuedRefusesProcessing(t *testing.T) {
	q, rec := newTestQueue(t, Options{})

	release := make(chan struct{})
	q.SetExecuteCallback(func(ctx context.Context, e Entry) error {
		<-release
		return nil
	})

	require.True(t, q.Enqueue(testJob("J1", "P1"), EnqueueOptions{}))
	rec.wait(t, EventProcessing)
	assert.False(t, q.Cancel("J1"), "processing entries cannot be cancelled")

	require.True(t, q.Enqueue(testJob("J2", "P1"), EnqueueOptions{}))
	assert.True(t, q.Cancel("J2"))
	ev := rec.wait(t, EventCancelled)
	assert.Equal(t, "J2", ev.Entry.Job.ID)

	assert.False(t, q.Cancel("J2"), "terminal entries cannot be cancelled again")
	assert.False(t, q.Cancel("missing"))

	close(release)
	rec.wait(t, EventCompleted)
}

func TestTTLExpiry(t *testing.T) {
	q, rec := newTestQueue(t, Options{})

	require.True(t, q.Enqueue(testJob("J1", "NoSuchPrinter"), EnqueueOptions{TTL: time.Millisecond}))
	time.Sleep(5 * time.Millisecond)
	q.expire()

	ev := rec.wait(t, EventExpired)
	assert.Equal(t, "TTL exceeded", ev.Entry.Error)
	assert.Equal(t, 0, ev.Entry.Retries)
	assert.Equal(t, 1, q.GetStats().Expired)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-queue.json")

	q, _ := newTestQueue(t, Options{Path: path})
	require.True(t, q.Enqueue(testJob("J1", "P1"), EnqueueOptions{}))
	require.True(t, q.Enqueue(testJob("J2", "P2"), EnqueueOptions{}))
	require.NoError(t, q.Flush())

	reloaded, err := New(Options{Path: path})
	require.NoError(t, err)
	defer reloaded.Stop()

	stats := reloaded.GetStats()
	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, int64(2), stats.Metrics.Enqueued)
}

func TestLoadDemotesProcessing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-queue.json")
	now := time.Now()

	state := fileState{
		Jobs: []Entry{{
			Job:               testJob("J1", "P1"),
			Status:            StatusProcessing,
			PrinterSystemName: "P1",
			Priority:          job.PriorityNormal,
			MaxRetries:        3,
			CreatedAt:         now,
			UpdatedAt:         now,
			ExpiresAt:         now.Add(time.Hour),
		}},
		SavedAt: now,
	}
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	q, err := New(Options{Path: path})
	require.NoError(t, err)
	defer q.Stop()

	recent := q.GetRecentJobs(10)
	require.Len(t, recent, 1)
	assert.Equal(t, StatusQueued, recent[0].Status)
}

func TestLoadBackfillsAndExpires(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-queue.json")
	old := time.Now().Add(-48 * time.Hour)

	state := fileState{Jobs: []Entry{{
		Job:       testJob("J1", "P1"),
		Status:    StatusQueued,
		CreatedAt: old,
		UpdatedAt: old,
	}}}
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	q, err := New(Options{Path: path})
	require.NoError(t, err)
	defer q.Stop()

	recent := q.GetRecentJobs(10)
	require.Len(t, recent, 1)
	// expiresAt back-filled from createdAt+TTL, already past: expired on load.
	assert.Equal(t, StatusExpired, recent[0].Status)
	assert.Equal(t, "TTL exceeded", recent[0].Error)
	assert.Equal(t, job.PriorityNormal, recent[0].Priority)
	assert.Equal(t, "P1", recent[0].PrinterSystemName)
}

func TestLoadFallsBackToTmp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-queue.json")

	good, _ := newTestQueue(t, Options{Path: path})
	require.True(t, good.Enqueue(testJob("J1", "P1"), EnqueueOptions{}))
	require.NoError(t, good.Flush())

	// Corrupt main file, move the valid copy aside as .tmp.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path+".tmp", data, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	q, err := New(Options{Path: path})
	require.NoError(t, err)
	defer q.Stop()

	assert.Equal(t, 1, q.GetStats().Queued)
}

func TestHistoryTrim(t *testing.T) {
	q, rec := newTestQueue(t, Options{HistoryLimit: 3})
	q.SetExecuteCallback(func(ctx context.Context, e Entry) error { return nil })

	for i := 0; i < 6; i++ {
		require.True(t, q.Enqueue(testJob(fmt.Sprintf("J%d", i), "P1"), EnqueueOptions{}))
		rec.wait(t, EventCompleted)
	}

	stats := q.GetStats()
	assert.LessOrEqual(t, stats.Completed, 4, "terminal history must be trimmed")
}

func TestSerializeRoundTripIdentical(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	entry := Entry{
		Job:               testJob("J1", "P1"),
		Status:            StatusFailed,
		Priority:          job.PriorityUrgent,
		PrinterSystemName: "P1",
		Retries:           3,
		MaxRetries:        3,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(time.Hour),
		Error:             "boom",
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	var back Entry
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, entry, back)
}
