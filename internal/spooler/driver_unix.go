//go:build !windows

package spooler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// lpSubmitter drives CUPS through lp. Files and raw streams both go through
// lp; raw streams are pushed on stdin with -o raw so the driver does not
// reinterpret them.
type lpSubmitter struct {
	log *logrus.Entry
}

func newPlatformSubmitter(log *logrus.Entry) Submitter {
	return &lpSubmitter{log: log}
}

func (s *lpSubmitter) Submit(ctx context.Context, payload Payload, printerName string, opts SubmitOptions) (*Handle, error) {
	args := []string{"-d", printerName}

	if payload.IsStream() {
		args = append(args, "-o", "raw", "-")
	} else {
		if opts.Landscape {
			args = append(args, "-o", "landscape")
		}
		if opts.PageWidthMM > 0 && opts.PageHeightMM > 0 {
			args = append(args, "-o", fmt.Sprintf("media=Custom.%gx%gmm", opts.PageWidthMM, opts.PageHeightMM))
		} else if opts.PaperSize != "" {
			args = append(args, "-o", "media="+opts.PaperSize)
		}
		args = append(args, payload.FilePath)
	}

	cmd := exec.CommandContext(ctx, "lp", args...)
	if payload.IsStream() {
		cmd.Stdin = bytes.NewReader(payload.Data)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: lp: %v: %s", ErrSubmit, err, bytes.TrimSpace(out))
	}

	handle := &Handle{Printer: printerName}
	if id, ok := parseRequestID(string(out)); ok {
		handle.OSJobID = id
		handle.HasID = true
	}
	s.log.WithFields(logrus.Fields{
		"printer": printerName,
		"osJobId": handle.OSJobID,
		"hasId":   handle.HasID,
	}).Debug("submitted to spooler")
	return handle, nil
}
