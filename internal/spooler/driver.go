package spooler

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"
)

var ErrSubmit = errors.New("spooler submission failed")

// Handle is an opaque reference to a job accepted by the OS print subsystem.
// Not every submission path recovers an OS job id; monitoring adapts.
type Handle struct {
	Printer string
	OSJobID int
	HasID   bool
}

// Payload is the device-ready input produced by the renderer: either an
// in-process stream or a file on disk.
type Payload struct {
	Data     []byte
	FilePath string
}

func (p Payload) IsStream() bool { return len(p.Data) > 0 }

type SubmitOptions struct {
	Landscape    bool
	PageWidthMM  float64
	PageHeightMM float64
	PaperSize    string
}

// Submitter is the single seam in front of the platform submission
// strategies.
type Submitter interface {
	Submit(ctx context.Context, payload Payload, printerName string, opts SubmitOptions) (*Handle, error)
}

// NewSubmitter selects the platform strategy at construction.
func NewSubmitter(log *logrus.Logger) Submitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return newPlatformSubmitter(log.WithField("component", "spooler"))
}

var requestIDRe = regexp.MustCompile(`request id is \S+-(\d+)`)

// parseRequestID recovers the spooler job id from lp's
// "request id is <printer>-<n> (1 file(s))" banner.
func parseRequestID(out string) (int, bool) {
	m := requestIDRe.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}
