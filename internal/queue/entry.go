package queue

import (
	"time"

	"github.com/repairmind/print-agent/internal/job"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Entry wraps a job with its queue lifecycle. PrinterSystemName is mirrored
// from the job so sorting and striping never touch the payload.
type Entry struct {
	Job               job.Job      `json:"job"`
	Status            Status       `json:"status"`
	Priority          job.Priority `json:"priority"`
	PrinterSystemName string       `json:"printerSystemName"`
	Retries           int          `json:"retries"`
	MaxRetries        int          `json:"maxRetries"`
	NextRetryAt       time.Time    `json:"nextRetryAt,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	ExpiresAt         time.Time    `json:"expiresAt"`
	Error             string       `json:"error,omitempty"`
}

type EventType string

const (
	EventQueued       EventType = "job-queued"
	EventProcessing   EventType = "job-processing"
	EventCompleted    EventType = "job-completed"
	EventFailed       EventType = "job-failed"
	EventRetrying     EventType = "job-retrying"
	EventExpired      EventType = "job-expired"
	EventCancelled    EventType = "job-cancelled"
	EventDeduplicated EventType = "job-deduplicated"
	EventError        EventType = "error"
)

// Event carries a snapshot of the entry at emission time.
type Event struct {
	Type  EventType
	Entry Entry
	Err   error
}

type Listener func(Event)

// Stats is the aggregate view returned by GetStats.
type Stats struct {
	Queued         int     `json:"queued"`
	Processing     int     `json:"processing"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	Expired        int     `json:"expired"`
	Cancelled      int     `json:"cancelled"`
	ActivePrinters int     `json:"activePrinters"`
	Metrics        Metrics `json:"metrics"`
}

// Metrics are monotonic counters persisted with the queue file.
type Metrics struct {
	Enqueued     int64 `json:"enqueued"`
	Completed    int64 `json:"completed"`
	Failed       int64 `json:"failed"`
	Expired      int64 `json:"expired"`
	Cancelled    int64 `json:"cancelled"`
	Deduplicated int64 `json:"deduplicated"`
}
