package render

import (
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/repairmind/print-agent/internal/job"
)

var documentTitles = map[job.DocumentType]string{
	job.DocInvoice:      "FACTURE",
	job.DocQuote:        "DEVIS",
	job.DocDeliveryNote: "BON DE LIVRAISON",
	job.DocReport:       "RAPPORT",
}

// Fixed column layout of the items table, in mm from the left margin.
const (
	colQtyX   = 10.0
	colDescX  = 30.0
	colPriceX = 160.0
	tableEndX = 200.0
)

// BuildDocumentPDF generates an office document (invoice, quote, delivery
// note, report) from structured fields and writes it to path.
func BuildDocumentPDF(docType job.DocumentType, c *Content, path string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(documentTitles[docType], false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, documentTitles[docType], "", 1, "C", false, 0, "")

	if c.DocumentNumber != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, fmt.Sprintf("N° %s", c.DocumentNumber), "", 1, "C", false, 0, "")
	}
	if c.Timestamp != "" {
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, c.Timestamp, "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	// Company block on the left, client block on the right.
	top := pdf.GetY()
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetX(colQtyX)
	pdf.CellFormat(90, 5, firstNonEmpty(c.CompanyName, c.StoreName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	writeBlock(pdf, colQtyX, 90, firstNonEmpty(c.CompanyAddress, c.StoreAddress))

	pdf.SetY(top)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetX(110)
	pdf.CellFormat(90, 5, c.ClientName, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	writeBlock(pdf, 110, 90, c.ClientAddress)
	if c.ClientPhone != "" {
		pdf.SetX(110)
		pdf.CellFormat(90, 5, c.ClientPhone, "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetX(colQtyX)
	pdf.CellFormat(colDescX-colQtyX, 7, "Qté", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colPriceX-colDescX, 7, "Désignation", "B", 0, "L", false, 0, "")
	pdf.CellFormat(tableEndX-colPriceX, 7, "Prix", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, item := range c.Items {
		pdf.SetX(colQtyX)
		pdf.CellFormat(colDescX-colQtyX, 6, fmt.Sprintf("%d", item.Quantity), "", 0, "L", false, 0, "")
		pdf.CellFormat(colPriceX-colDescX, 6, item.Description, "", 0, "L", false, 0, "")
		pdf.CellFormat(tableEndX-colPriceX, 6, item.Price.StringFixed(2), "", 1, "R", false, 0, "")
	}

	if c.Total != nil {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetX(colPriceX - 40)
		pdf.CellFormat(tableEndX-colPriceX+40, 8,
			fmt.Sprintf("TOTAL: %s EUR", c.Total.StringFixed(2)), "T", 1, "R", false, 0, "")
	}

	if c.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 9)
		writeBlock(pdf, colQtyX, tableEndX-colQtyX, c.Notes)
	}
	if c.Footer != "" {
		pdf.SetY(-25)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 5, c.Footer, "", 1, "C", false, 0, "")
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func writeBlock(pdf *fpdf.Fpdf, x, w float64, text string) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		pdf.SetX(x)
		pdf.CellFormat(w, 5, line, "", 1, "L", false, 0, "")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
