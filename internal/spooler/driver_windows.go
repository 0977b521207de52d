//go:build windows

package spooler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// winSubmitter shells out to PowerShell. PDF and HTML files print through
// the shell's PrintTo verb; raw streams are handed to the driver untouched.
// Neither path exposes a spooler job id.
type winSubmitter struct {
	log *logrus.Entry
}

func newPlatformSubmitter(log *logrus.Entry) Submitter {
	return &winSubmitter{log: log}
}

func (s *winSubmitter) Submit(ctx context.Context, payload Payload, printerName string, opts SubmitOptions) (*Handle, error) {
	if payload.IsStream() {
		return s.submitRaw(ctx, payload.Data, printerName)
	}
	return s.submitFile(ctx, payload.FilePath, printerName)
}

func (s *winSubmitter) submitFile(ctx context.Context, path, printerName string) (*Handle, error) {
	script := fmt.Sprintf(
		`Start-Process -FilePath %q -Verb PrintTo -ArgumentList %q -PassThru | Wait-Process -Timeout 30`,
		path, printerName,
	)
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: print verb: %v: %s", ErrSubmit, err, bytes.TrimSpace(out))
	}
	return &Handle{Printer: printerName}, nil
}

func (s *winSubmitter) submitRaw(ctx context.Context, data []byte, printerName string) (*Handle, error) {
	tmp, err := os.CreateTemp("", "raw-*.prn")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmit, err)
	}
	defer func() {
		tmp.Close()
		time.AfterFunc(30*time.Second, func() { _ = os.Remove(tmp.Name()) })
	}()
	if _, err := tmp.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmit, err)
	}
	tmp.Close()

	script := fmt.Sprintf(
		`Get-Content -Path %q -Raw -Encoding Byte | Out-Printer -Name %q`,
		filepath.Clean(tmp.Name()), printerName,
	)
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: raw print: %v: %s", ErrSubmit, err, bytes.TrimSpace(out))
	}
	s.log.WithField("printer", printerName).Debug("submitted raw stream")
	return &Handle{Printer: printerName}, nil
}
