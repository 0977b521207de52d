//go:build !windows

package printer

import (
	"context"
	"os/exec"
	"strings"
)

// cupsSource shells out to lpstat. CUPS is the only spooler the agent drives
// on unix-like hosts.
type cupsSource struct{}

func newPlatformSource() platformSource {
	return &cupsSource{}
}

func (s *cupsSource) list(ctx context.Context) ([]rawPrinter, error) {
	statusOut, err := exec.CommandContext(ctx, "lpstat", "-p", "-l").CombinedOutput()
	if err != nil {
		// lpstat exits non-zero when no destinations exist; treat an empty
		// spooler as an empty snapshot, not a failure.
		if strings.Contains(string(statusOut), "No destinations") ||
			strings.Contains(string(statusOut), "no destinations") {
			return nil, nil
		}
		return nil, err
	}

	printers := parseLpstatPrinters(string(statusOut))

	if uriOut, err := exec.CommandContext(ctx, "lpstat", "-v").Output(); err == nil {
		applyDeviceURIs(printers, string(uriOut))
	}
	if defOut, err := exec.CommandContext(ctx, "lpstat", "-d").Output(); err == nil {
		applyDefault(printers, string(defOut))
	}

	out := make([]rawPrinter, 0, len(printers))
	for _, p := range printers {
		out = append(out, *p)
	}
	return out, nil
}

// parseLpstatPrinters reads "lpstat -p -l" output. Printer stanzas start at
// column zero; indented lines carry attributes for the current printer.
func parseLpstatPrinters(out string) []*rawPrinter {
	var printers []*rawPrinter
	var current *rawPrinter

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "printer ") {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			current = &rawPrinter{
				Name:   fields[1],
				Status: lpstatStatus(line),
			}
			printers = append(printers, current)
			continue
		}
		if current == nil {
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Description:"):
			current.Comment = strings.TrimSpace(strings.TrimPrefix(trimmed, "Description:"))
		case strings.HasPrefix(trimmed, "Location:"):
			current.Location = strings.TrimSpace(strings.TrimPrefix(trimmed, "Location:"))
		case strings.HasPrefix(trimmed, "Interface:"), strings.HasPrefix(trimmed, "Make and Model:"):
			if current.Driver == "" {
				_, value, _ := strings.Cut(trimmed, ":")
				current.Driver = strings.TrimSpace(value)
			}
		}
	}
	return printers
}

func lpstatStatus(line string) string {
	switch {
	case strings.Contains(line, "is idle"):
		return "idle"
	case strings.Contains(line, "now printing"):
		return "printing"
	case strings.Contains(line, "disabled"):
		return "disabled"
	default:
		return "unknown"
	}
}

// applyDeviceURIs merges "lpstat -v" lines of the form
// "device for <name>: <uri>".
func applyDeviceURIs(printers []*rawPrinter, out string) {
	for _, line := range strings.Split(out, "\n") {
		rest, found := strings.CutPrefix(line, "device for ")
		if !found {
			continue
		}
		name, uri, found := strings.Cut(rest, ":")
		if !found {
			continue
		}
		uri = strings.TrimSpace(uri)
		for _, p := range printers {
			if p.Name == strings.TrimSpace(name) {
				p.DeviceURI = uri
			}
		}
	}
}

func applyDefault(printers []*rawPrinter, out string) {
	_, name, found := strings.Cut(out, "destination:")
	if !found {
		return
	}
	name = strings.TrimSpace(name)
	for _, p := range printers {
		if p.Name == name {
			p.IsDefault = true
		}
	}
}
