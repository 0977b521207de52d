package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/repairmind/print-agent/internal/job"
	"github.com/repairmind/print-agent/internal/printer"
)

var ErrRender = errors.New("render failed")

// Output is either an in-process device stream (Data set, thermal and raw
// paths) or a temp file the spooler reads (FilePath set).
type Output struct {
	Data         []byte
	FilePath     string
	Raw          bool
	Landscape    bool
	PageWidthMM  float64
	PageHeightMM float64
}

func (o *Output) IsStream() bool { return len(o.Data) > 0 }

type Renderer struct {
	scratch *Scratch
	client  *http.Client
	log     *logrus.Entry
}

func New(log *logrus.Logger) (*Renderer, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	scratch, err := NewScratch()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		scratch: scratch,
		client:  newDownloadClient(),
		log:     log.WithField("component", "render"),
	}, nil
}

func (r *Renderer) Scratch() *Scratch { return r.scratch }

// Render converts a semantic job into a device-ready stream or file for the
// given printer. It never retries; the queue owns the retry policy.
func (r *Renderer) Render(ctx context.Context, j job.Job, desc printer.Descriptor) (*Output, error) {
	c, err := parseContent(j.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	switch j.DocumentType {
	case job.DocReceipt, job.DocTicket:
		return &Output{Data: BuildReceipt(c, desc), Raw: true}, nil

	case job.DocInvoice, job.DocQuote, job.DocDeliveryNote, job.DocReport:
		if c.PDFURL != "" || c.PDFBase64 != "" {
			return r.materializePDF(ctx, j.ID, c)
		}
		path := r.scratch.PathFor(j.ID, ".pdf")
		if err := BuildDocumentPDF(j.DocumentType, c, path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
		return &Output{FilePath: path}, nil

	case job.DocPDFRaw:
		return r.materializePDF(ctx, j.ID, c)

	case job.DocLabel, job.DocBarcode, job.DocQRCode:
		return r.renderLabel(ctx, j, c)

	case job.DocRaw:
		data, err := decodeRawPayload(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
		return &Output{Data: data, Raw: true}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported document type %q", ErrRender, j.DocumentType)
	}
}

// renderLabel routes label-family jobs: first match wins between native ZPL,
// a raw stream, a pre-rendered PDF and the HTML fallback.
func (r *Renderer) renderLabel(ctx context.Context, j job.Job, c *Content) (*Output, error) {
	if c.ZPL != "" {
		return &Output{Data: []byte(c.ZPL), Raw: true}, nil
	}
	if c.RawData != "" {
		return &Output{Data: []byte(c.RawData), Raw: true}, nil
	}
	if c.PDFURL != "" || c.PDFBase64 != "" {
		return r.materializePDF(ctx, j.ID, c)
	}

	path := r.scratch.PathFor(j.ID, ".html")
	w, h, err := BuildLabelHTML(c, j.Options, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return &Output{FilePath: path, Landscape: true, PageWidthMM: w, PageHeightMM: h}, nil
}

// materializePDF turns a pdfUrl or pdfBase64 source into a scratch file.
func (r *Renderer) materializePDF(ctx context.Context, jobID string, c *Content) (*Output, error) {
	path := r.scratch.PathFor(jobID, ".pdf")

	switch {
	case c.PDFBase64 != "":
		data, err := base64.StdEncoding.DecodeString(c.PDFBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: decode pdfBase64: %v", ErrRender, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
	case c.PDFURL != "":
		if err := downloadFile(ctx, r.client, c.PDFURL, path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
	default:
		return nil, fmt.Errorf("%w: no pdfUrl or pdfBase64 in content", ErrRender)
	}
	return &Output{FilePath: path}, nil
}

func decodeRawPayload(c *Content) ([]byte, error) {
	if c.RawData != "" {
		return []byte(c.RawData), nil
	}
	if c.Data != "" {
		decoded, err := base64.StdEncoding.DecodeString(c.Data)
		if err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
		return decoded, nil
	}
	return nil, errors.New("raw job carries neither rawData nor data")
}
