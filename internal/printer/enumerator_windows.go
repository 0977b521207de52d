//go:build windows

package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// winSource queries the Windows spooler through PowerShell CIM, the same
// records the Print Management console shows.
type winSource struct{}

func newPlatformSource() platformSource {
	return &winSource{}
}

const winPrinterQuery = `Get-CimInstance Win32_Printer | ` +
	`Select-Object Name,DriverName,PortName,Location,Comment,Default,PrinterStatus,WorkOffline | ` +
	`ConvertTo-Json -Compress`

type winPrinter struct {
	Name          string `json:"Name"`
	DriverName    string `json:"DriverName"`
	PortName      string `json:"PortName"`
	Location      string `json:"Location"`
	Comment       string `json:"Comment"`
	Default       bool   `json:"Default"`
	PrinterStatus int    `json:"PrinterStatus"`
	WorkOffline   bool   `json:"WorkOffline"`
}

func (s *winSource) list(ctx context.Context) ([]rawPrinter, error) {
	out, err := exec.CommandContext(ctx,
		"powershell", "-NoProfile", "-NonInteractive", "-Command", winPrinterQuery,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("powershell printer query: %w", err)
	}
	return parseWinPrinters(out)
}

func parseWinPrinters(out []byte) ([]rawPrinter, error) {
	if len(out) == 0 {
		return nil, nil
	}

	// ConvertTo-Json emits a bare object for a single printer.
	var entries []winPrinter
	if err := json.Unmarshal(out, &entries); err != nil {
		var single winPrinter
		if err := json.Unmarshal(out, &single); err != nil {
			return nil, fmt.Errorf("parse printer query output: %w", err)
		}
		entries = []winPrinter{single}
	}

	raws := make([]rawPrinter, 0, len(entries))
	for _, e := range entries {
		raws = append(raws, rawPrinter{
			Name:      e.Name,
			Driver:    e.DriverName,
			PortName:  e.PortName,
			Location:  e.Location,
			Comment:   e.Comment,
			Status:    winStatus(e),
			IsDefault: e.Default,
		})
	}
	return raws, nil
}

func winStatus(p winPrinter) string {
	if p.WorkOffline {
		return "offline"
	}
	switch p.PrinterStatus {
	case 3:
		return "idle"
	case 4:
		return "printing"
	case 1, 2:
		return "unknown"
	default:
		return "error"
	}
}
