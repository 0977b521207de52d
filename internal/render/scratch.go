package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReapGrace is how long a rendered file outlives its job so the spooler can
// finish reading it.
const ReapGrace = 15 * time.Second

// Scratch is the process-wide temp directory for rendered output. Files are
// named by job id, so jobs never share paths.
type Scratch struct {
	dir   string
	grace time.Duration
}

func NewScratch() (*Scratch, error) {
	dir := filepath.Join(os.TempDir(), "repairmind-print")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir, grace: ReapGrace}, nil
}

func (s *Scratch) Dir() string { return s.dir }

func (s *Scratch) PathFor(jobID, ext string) string {
	return filepath.Join(s.dir, sanitize(jobID)+ext)
}

// Release schedules removal after the grace period, independent of the print
// outcome.
func (s *Scratch) Release(path string) {
	if path == "" || !strings.HasPrefix(path, s.dir) {
		return
	}
	time.AfterFunc(s.grace, func() {
		_ = os.Remove(path)
	})
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
