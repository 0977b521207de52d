package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type DocumentType string

const (
	DocReceipt      DocumentType = "receipt"
	DocTicket       DocumentType = "ticket"
	DocInvoice      DocumentType = "invoice"
	DocQuote        DocumentType = "quote"
	DocDeliveryNote DocumentType = "delivery_note"
	DocReport       DocumentType = "report"
	DocLabel        DocumentType = "label"
	DocBarcode      DocumentType = "barcode"
	DocQRCode       DocumentType = "qrcode"
	DocRaw          DocumentType = "raw"
	DocPDFRaw       DocumentType = "pdf_raw"
)

var documentTypes = map[DocumentType]bool{
	DocReceipt:      true,
	DocTicket:       true,
	DocInvoice:      true,
	DocQuote:        true,
	DocDeliveryNote: true,
	DocReport:       true,
	DocLabel:        true,
	DocBarcode:      true,
	DocQRCode:       true,
	DocRaw:          true,
	DocPDFRaw:       true,
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Ordinal orders priorities for scheduling: urgent before normal before low.
func (p Priority) Ordinal() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

type Options struct {
	PaperSize     string   `json:"paperSize,omitempty"`
	Margins       *Margins `json:"margins,omitempty"`
	LabelWidthMM  float64  `json:"labelWidthMm,omitempty"`
	LabelHeightMM float64  `json:"labelHeightMm,omitempty"`
	Doctype       string   `json:"doctype,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
}

type Margins struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Job is a print order as received from the backend. Content is
// document-type specific and decoded by the renderer.
type Job struct {
	ID                string          `json:"id"`
	PrinterSystemName string          `json:"printerSystemName"`
	DocumentType      DocumentType    `json:"documentType"`
	Priority          Priority        `json:"priority,omitempty"`
	Options           *Options        `json:"options,omitempty"`
	Content           json.RawMessage `json:"content"`
}

var (
	ErrMissingID      = errors.New("job id is required")
	ErrMissingPrinter = errors.New("printerSystemName is required")
)

func (j *Job) Validate() error {
	if j.ID == "" {
		return ErrMissingID
	}
	if j.PrinterSystemName == "" {
		return ErrMissingPrinter
	}
	if !documentTypes[j.DocumentType] {
		return fmt.Errorf("unsupported document type %q", j.DocumentType)
	}
	return nil
}

// EffectivePriority resolves the server-assigned priority, falling back to
// options and finally to normal.
func (j *Job) EffectivePriority() Priority {
	if j.Priority.Valid() {
		return j.Priority
	}
	if j.Options != nil && j.Options.Priority.Valid() {
		return j.Options.Priority
	}
	return PriorityNormal
}

// NewTestID builds a local test job id of the form test-<epoch>.
func NewTestID() string {
	return fmt.Sprintf("test-%d", time.Now().Unix())
}
