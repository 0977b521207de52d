//go:build !windows

package spooler

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// cupsReader interprets lpstat output for a single job.
type cupsReader struct{}

func NewStatusReader() StatusReader {
	return &cupsReader{}
}

func (r *cupsReader) JobStatus(ctx context.Context, printerName string, osJobID int) (OSStatus, error) {
	jobName := fmt.Sprintf("%s-%d", printerName, osJobID)

	active, err := exec.CommandContext(ctx, "lpstat", "-W", "not-completed", "-o", printerName).Output()
	if err != nil {
		return OSMissing, fmt.Errorf("lpstat not-completed: %w", err)
	}
	if line, ok := findJobLine(string(active), jobName); ok {
		return interpretActiveLine(ctx, printerName, line), nil
	}

	completed, err := exec.CommandContext(ctx, "lpstat", "-W", "completed", "-o", printerName).Output()
	if err != nil {
		return OSMissing, fmt.Errorf("lpstat completed: %w", err)
	}
	if _, ok := findJobLine(string(completed), jobName); ok {
		return OSPrinted, nil
	}

	return OSMissing, nil
}

func findJobLine(out, jobName string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), jobName+" ") ||
			strings.TrimSpace(line) == jobName {
			return line, true
		}
	}
	return "", false
}

// interpretActiveLine refines a queued job's state using the printer status:
// CUPS keeps stopped or media-blocked jobs in not-completed with the printer
// flagged, not the job.
func interpretActiveLine(ctx context.Context, printerName, line string) OSStatus {
	out, err := exec.CommandContext(ctx, "lpstat", "-p", printerName).Output()
	if err != nil {
		return OSPrinting
	}
	state := strings.ToLower(string(out))
	switch {
	case strings.Contains(state, "paused") || strings.Contains(state, "stopped"):
		return OSBlocked
	case strings.Contains(state, "media") || strings.Contains(state, "paper"):
		return OSPaperOut
	case strings.Contains(state, "offline") || strings.Contains(state, "unable to connect"):
		return OSOffline
	case strings.Contains(state, "now printing"):
		return OSPrinting
	default:
		return OSPrinting
	}
}
