package spooler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptReader replays a fixed sequence of statuses, holding the last one.
type scriptReader struct {
	mu     sync.Mutex
	script []OSStatus
	errs   []error
	i      int
}

func (r *scriptReader) JobStatus(ctx context.Context, printerName string, osJobID int) (OSStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.i
	if idx >= len(r.script) {
		idx = len(r.script) - 1
	}
	r.i++
	var err error
	if idx < len(r.errs) {
		err = r.errs[idx]
	}
	return r.script[idx], err
}

func newTestMonitor(reader StatusReader) *Monitor {
	m := NewMonitor(reader, nil)
	m.pollInterval = 2 * time.Millisecond
	m.timeout = 200 * time.Millisecond
	m.noIDDelay = 2 * time.Millisecond
	return m
}

func collect(t *testing.T, m *Monitor, handle *Handle) []Report {
	t.Helper()
	var mu sync.Mutex
	var reports []Report
	done := make(chan struct{})

	m.Watch("P1", handle, func(r Report) {
		mu.Lock()
		reports = append(reports, r)
		terminal := r.Terminal
		mu.Unlock()
		if terminal {
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal report")
	}
	// Give a potential (buggy) second terminal a chance to fire.
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	return append([]Report(nil), reports...)
}

func terminalCount(reports []Report) int {
	n := 0
	for _, r := range reports {
		if r.Terminal {
			n++
		}
	}
	return n
}

func TestWatchNoIDCompletesWithoutPolling(t *testing.T) {
	reader := &scriptReader{script: []OSStatus{OSError}}
	reports := collect(t, newTestMonitor(reader), &Handle{Printer: "P1"})

	require.Len(t, reports, 1)
	assert.Equal(t, ReportCompleted, reports[0].Status)
	assert.Equal(t, 0, reader.i, "must not poll without an os job id")
}

func TestWatchPrintedIsCompleted(t *testing.T) {
	reader := &scriptReader{script: []OSStatus{OSPrinting, OSPrinted}}
	reports := collect(t, newTestMonitor(reader), &Handle{Printer: "P1", OSJobID: 7, HasID: true})

	last := reports[len(reports)-1]
	assert.Equal(t, ReportCompleted, last.Status)
	assert.Equal(t, 1, terminalCount(reports))
}

func TestWatchMissingAfterPrintingIsCompleted(t *testing.T) {
	reader := &scriptReader{script: []OSStatus{OSPrinting, OSMissing}}
	reports := collect(t, newTestMonitor(reader), &Handle{Printer: "P1", OSJobID: 7, HasID: true})

	last := reports[len(reports)-1]
	assert.Equal(t, ReportCompleted, last.Status)
}

func TestWatchMissingWithoutPrintingIsFailed(t *testing.T) {
	reader := &scriptReader{script: []OSStatus{OSMissing}}
	reports := collect(t, newTestMonitor(reader), &Handle{Printer: "P1", OSJobID: 7, HasID: true})

	require.Len(t, reports, 1)
	assert.Equal(t, ReportFailed, reports[0].Status)
	assert.Contains(t, reports[0].Detail, "before printing")
}

func TestWatchMissingAfterErrorIsFailed(t *testing.T) {
	reader := &scriptReader{script: []OSStatus{OSPaperOut, OSMissing}}
	reports := collect(t, newTestMonitor(reader), &Handle{Printer: "P1", OSJobID: 7, HasID: true})

	require.GreaterOrEqual(t, len(reports), 2)
	assert.Equal(t, ReportPrinting, reports[0].Status)
	assert.True(t, reports[0].HasError)

	last := reports[len(reports)-1]
	assert.Equal(t, ReportFailed, last.Status)
	assert.Contains(t, last.Detail, "after error")
}

func TestWatchErrorClearedByPrinting(t *testing.T) {
	// Paper out, operator reloads, job prints, then leaves the queue.
	reader := &scriptReader{script: []OSStatus{OSPaperOut, OSPrinting, OSMissing}}
	reports := collect(t, newTestMonitor(reader), &Handle{Printer: "P1", OSJobID: 7, HasID: true})

	last := reports[len(reports)-1]
	assert.Equal(t, ReportCompleted, last.Status)
}

func TestWatchCancelledIsFailed(t *testing.T) {
	reader := &scriptReader{script: []OSStatus{OSPrinting, OSCancelled}}
	reports := collect(t, newTestMonitor(reader), &Handle{Printer: "P1", OSJobID: 7, HasID: true})

	last := reports[len(reports)-1]
	assert.Equal(t, ReportFailed, last.Status)
	assert.Equal(t, 1, terminalCount(reports))
}

func TestWatchPollErrorsAreSkippedTicks(t *testing.T) {
	reader := &scriptReader{
		script: []OSStatus{OSPrinting, OSPrinting, OSPrinted},
		errs:   []error{nil, context.DeadlineExceeded, nil},
	}
	reports := collect(t, newTestMonitor(reader), &Handle{Printer: "P1", OSJobID: 7, HasID: true})

	last := reports[len(reports)-1]
	assert.Equal(t, ReportCompleted, last.Status)
}

func TestWatchTimeoutAssumesCompleted(t *testing.T) {
	reader := &scriptReader{script: []OSStatus{OSPrinting}}
	m := newTestMonitor(reader)
	m.timeout = 20 * time.Millisecond
	reports := collect(t, m, &Handle{Printer: "P1", OSJobID: 7, HasID: true})

	last := reports[len(reports)-1]
	assert.Equal(t, ReportCompleted, last.Status)
	assert.Contains(t, last.Detail, "timeout")
	assert.Equal(t, 1, terminalCount(reports))
}

func TestWatchCancelStopsWithoutTerminal(t *testing.T) {
	reader := &scriptReader{script: []OSStatus{OSPrinting}}
	m := newTestMonitor(reader)

	var mu sync.Mutex
	var reports []Report
	cancel := m.Watch("P1", &Handle{Printer: "P1", OSJobID: 7, HasID: true}, func(r Report) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})
	time.Sleep(10 * time.Millisecond)
	cancel()
	cancel() // idempotent
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, terminalCount(reports))
}

func TestParseRequestID(t *testing.T) {
	id, ok := parseRequestID("request id is TM-T88V-42 (1 file(s))\n")
	require.True(t, ok)
	assert.Equal(t, 42, id)

	_, ok = parseRequestID("lp: error")
	assert.False(t, ok)
}
