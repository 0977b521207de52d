//go:build windows

package spooler

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// winReader polls Get-PrintJob for one job.
type winReader struct{}

func NewStatusReader() StatusReader {
	return &winReader{}
}

type winJob struct {
	ID        int    `json:"Id"`
	JobStatus string `json:"JobStatus"`
}

func (r *winReader) JobStatus(ctx context.Context, printerName string, osJobID int) (OSStatus, error) {
	script := fmt.Sprintf(
		`Get-PrintJob -PrinterName %q -ID %d | Select-Object Id,JobStatus | ConvertTo-Json -Compress`,
		printerName, osJobID,
	)
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script).Output()
	if err != nil {
		// Get-PrintJob errors out when the job no longer exists.
		if strings.Contains(err.Error(), "exit status") {
			return OSMissing, nil
		}
		return OSMissing, fmt.Errorf("get-printjob: %w", err)
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return OSMissing, nil
	}

	var j winJob
	if err := json.Unmarshal(out, &j); err != nil {
		return OSMissing, fmt.Errorf("parse get-printjob output: %w", err)
	}
	return mapWinStatus(j.JobStatus), nil
}

func mapWinStatus(status string) OSStatus {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "printed") || strings.Contains(s, "complete"):
		return OSPrinted
	case strings.Contains(s, "deleted") || strings.Contains(s, "deleting"):
		return OSCancelled
	case strings.Contains(s, "error"):
		return OSError
	case strings.Contains(s, "offline"):
		return OSOffline
	case strings.Contains(s, "paperout") || strings.Contains(s, "paper"):
		return OSPaperOut
	case strings.Contains(s, "blocked") || strings.Contains(s, "paused"):
		return OSBlocked
	case strings.Contains(s, "printing") || strings.Contains(s, "spooling"):
		return OSPrinting
	default:
		return OSPrinting
	}
}
