package spooler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// OSStatus is what the spooler reports for a job at one poll tick.
type OSStatus string

const (
	OSMissing   OSStatus = "missing"
	OSPrinting  OSStatus = "printing"
	OSPrinted   OSStatus = "printed"
	OSCancelled OSStatus = "cancelled"
	OSAborted   OSStatus = "aborted"
	OSBlocked   OSStatus = "blocked"
	OSError     OSStatus = "error"
	OSOffline   OSStatus = "offline"
	OSPaperOut  OSStatus = "paperout"
)

// StatusReader polls the OS spooler for one job's state.
type StatusReader interface {
	JobStatus(ctx context.Context, printerName string, osJobID int) (OSStatus, error)
}

// Report is delivered to the status callback. Terminal is true exactly once
// per monitoring session.
type Report struct {
	Status   string
	HasError bool
	Terminal bool
	Detail   string
}

const (
	ReportCompleted = "completed"
	ReportFailed    = "failed"
	ReportPrinting  = "printing"
)

type OnStatus func(Report)

type Monitor struct {
	reader       StatusReader
	pollInterval time.Duration
	timeout      time.Duration
	noIDDelay    time.Duration
	log          *logrus.Entry
}

func NewMonitor(reader StatusReader, log *logrus.Logger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{
		reader:       reader,
		pollInterval: 2 * time.Second,
		timeout:      120 * time.Second,
		noIDDelay:    500 * time.Millisecond,
		log:          log.WithField("component", "monitor"),
	}
}

// Watch polls the spooler until the job reaches a terminal interpretation,
// then stops. The returned cancel is idempotent and stops the poll loop
// without a terminal callback.
func (m *Monitor) Watch(printerName string, handle *Handle, onStatus OnStatus) (cancel func()) {
	done := make(chan struct{})
	cancel = func() {
		select {
		case <-done:
		default:
			close(done)
		}
	}

	go m.watch(printerName, handle, onStatus, done)
	return cancel
}

func (m *Monitor) watch(printerName string, handle *Handle, onStatus OnStatus, done chan struct{}) {
	// Synchronous submission paths expose no job id; the outcome is not
	// observable, so the job is assumed printed after a short settle.
	if handle == nil || !handle.HasID {
		select {
		case <-done:
			return
		case <-time.After(m.noIDDelay):
		}
		onStatus(Report{Status: ReportCompleted, Terminal: true, Detail: "no spooler id, assumed printed"})
		return
	}

	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var sawPrinting, hadError bool

	for {
		select {
		case <-done:
			return
		case <-deadline.C:
			onStatus(Report{Status: ReportCompleted, Terminal: true, Detail: "monitor timeout, assumed printed"})
			return
		case <-ticker.C:
		}

		ctx, cancelPoll := context.WithTimeout(context.Background(), m.pollInterval)
		status, err := m.reader.JobStatus(ctx, printerName, handle.OSJobID)
		cancelPoll()
		if err != nil {
			// A failed poll is a skipped tick, not a verdict.
			m.log.WithError(err).Debug("spooler poll failed")
			continue
		}

		switch status {
		case OSMissing:
			switch {
			case sawPrinting && !hadError:
				onStatus(Report{Status: ReportCompleted, Terminal: true})
			case hadError:
				onStatus(Report{Status: ReportFailed, Terminal: true, Detail: "likely cancelled after error"})
			default:
				onStatus(Report{Status: ReportFailed, Terminal: true, Detail: "cancelled before printing"})
			}
			return
		case OSPrinted:
			onStatus(Report{Status: ReportCompleted, Terminal: true})
			return
		case OSCancelled, OSAborted:
			onStatus(Report{Status: ReportFailed, Terminal: true, Detail: string(status)})
			return
		case OSBlocked, OSError, OSOffline, OSPaperOut:
			hadError = true
			onStatus(Report{Status: ReportPrinting, HasError: true, Detail: string(status)})
		case OSPrinting:
			sawPrinting = true
			hadError = false
			onStatus(Report{Status: ReportPrinting})
		}
	}
}
