package render

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Content is the union of the document-type specific payload shapes carried
// on the wire. The renderer reads only the fields its route needs.
type Content struct {
	// Receipt / ticket.
	StoreName     string           `json:"storeName,omitempty"`
	StoreAddress  string           `json:"storeAddress,omitempty"`
	StorePhone    string           `json:"storePhone,omitempty"`
	TicketNumber  string           `json:"ticketNumber,omitempty"`
	ReceiptNumber string           `json:"receiptNumber,omitempty"`
	Timestamp     string           `json:"timestamp,omitempty"`
	ClientName    string           `json:"clientName,omitempty"`
	ClientPhone   string           `json:"clientPhone,omitempty"`
	Items         []Item           `json:"items,omitempty"`
	Total         *decimal.Decimal `json:"total,omitempty"`
	Footer        string           `json:"footer,omitempty"`
	OpenDrawer    bool             `json:"openDrawer,omitempty"`

	// Structured office documents.
	DocumentNumber string `json:"documentNumber,omitempty"`
	CompanyName    string `json:"companyName,omitempty"`
	CompanyAddress string `json:"companyAddress,omitempty"`
	ClientAddress  string `json:"clientAddress,omitempty"`
	Notes          string `json:"notes,omitempty"`

	// Pre-rendered PDF sources.
	PDFURL    string `json:"pdfUrl,omitempty"`
	PDFBase64 string `json:"pdfBase64,omitempty"`

	// Labels.
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	SKU      string `json:"sku,omitempty"`
	Price    string `json:"price,omitempty"`
	Barcode  string `json:"barcode,omitempty"`
	ZPL      string `json:"zpl,omitempty"`

	// Raw device streams.
	RawData string `json:"rawData,omitempty"`
	Data    string `json:"data,omitempty"`
}

type Item struct {
	Quantity    int             `json:"quantity"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

func parseContent(raw json.RawMessage) (*Content, error) {
	var c Content
	if len(raw) == 0 {
		return &c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return &c, nil
}

// Number prefers the ticket number over the receipt number.
func (c *Content) Number() string {
	if c.TicketNumber != "" {
		return c.TicketNumber
	}
	return c.ReceiptNumber
}
