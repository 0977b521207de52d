package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fileState is the on-disk document: every entry plus the aggregate
// counters.
type fileState struct {
	Jobs    []Entry   `json:"jobs"`
	Metrics Metrics   `json:"metrics"`
	SavedAt time.Time `json:"savedAt"`
}

// markDirtyLocked schedules a debounced save. Callers hold q.mu.
func (q *Queue) markDirtyLocked() {
	if q.savePending || q.opts.Path == "" {
		return
	}
	q.savePending = true
	time.AfterFunc(q.opts.SaveDebounce, func() {
		if err := q.Flush(); err != nil {
			q.log.WithError(err).Error("queue save failed")
			q.emit(Event{Type: EventError, Err: err})
		}
	})
}

// Flush writes the queue file synchronously via tmp-then-rename.
func (q *Queue) Flush() error {
	if q.opts.Path == "" {
		return nil
	}

	q.mu.Lock()
	q.savePending = false
	state := fileState{
		Jobs:    make([]Entry, 0, len(q.entries)),
		Metrics: q.metrics,
		SavedAt: q.opts.Now(),
	}
	for _, e := range q.entries {
		state.Jobs = append(state.Jobs, *e)
	}
	q.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(q.opts.Path), 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}

	tmp := q.opts.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create tmp queue file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write queue state: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync queue state: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close queue state: %w", err)
	}
	if err := os.Rename(tmp, q.opts.Path); err != nil {
		return fmt.Errorf("rename queue state: %w", err)
	}
	return nil
}

// load restores state from the main file, falling back to the .tmp sibling
// when the main file is absent or corrupt. Recovery rules: processing
// entries demote to queued, missing fields are back-filled, entries past
// their TTL expire in place before the scheduler ever runs.
func (q *Queue) load() error {
	if q.opts.Path == "" {
		return nil
	}

	state, err := readState(q.opts.Path)
	if err != nil {
		var tmpErr error
		state, tmpErr = readState(q.opts.Path + ".tmp")
		if tmpErr != nil {
			if errors.Is(err, os.ErrNotExist) && errors.Is(tmpErr, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("read queue file: %v (tmp fallback: %v)", err, tmpErr)
		}
		q.log.Warn("queue file unreadable, recovered from tmp")
	}

	now := q.opts.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	q.metrics = state.Metrics
	for i := range state.Jobs {
		e := state.Jobs[i]
		if e.Job.ID == "" {
			continue
		}
		if e.Status == StatusProcessing {
			e.Status = StatusQueued
			e.UpdatedAt = now
		}
		if e.PrinterSystemName == "" {
			e.PrinterSystemName = e.Job.PrinterSystemName
		}
		if !e.Priority.Valid() {
			e.Priority = e.Job.EffectivePriority()
		}
		if e.ExpiresAt.IsZero() {
			base := e.CreatedAt
			if base.IsZero() {
				base = now
				e.CreatedAt = now
			}
			e.ExpiresAt = base.Add(q.opts.DefaultTTL)
		}
		if e.Status == StatusQueued && e.ExpiresAt.Before(now) {
			e.Status = StatusExpired
			e.Error = "TTL exceeded"
			e.UpdatedAt = now
			q.metrics.Expired++
		}
		q.entries[e.Job.ID] = &e
	}
	return nil
}

func readState(path string) (*fileState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &state, nil
}
