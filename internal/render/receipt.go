package render

import (
	"fmt"

	"github.com/repairmind/print-agent/internal/printer"
)

const thanksLine = "Merci de votre visite !"

// receiptColumns picks the column width from the printer's paper width.
func receiptColumns(desc printer.Descriptor) int {
	if desc.Capabilities.MaxWidthMM > 0 && desc.Capabilities.MaxWidthMM <= 58 {
		return 32
	}
	return 42
}

// BuildReceipt renders a receipt or ticket as an ESC/POS stream in the
// dialect of the target printer.
func BuildReceipt(c *Content, desc printer.Descriptor) []byte {
	b := NewESCPOSBuilder(DialectFor(desc.SystemName), receiptColumns(desc))

	b.Align(AlignCenter).Bold(true).DoubleHeight(true)
	b.Line(c.StoreName)
	b.DoubleHeight(false).Bold(false)

	if c.StoreAddress != "" {
		b.Line(c.StoreAddress)
	}
	if c.StorePhone != "" {
		b.Line(c.StorePhone)
	}
	b.Align(AlignLeft).Rule()

	if number := c.Number(); number != "" {
		b.Align(AlignCenter).Line(number).Align(AlignLeft)
	}
	if c.Timestamp != "" {
		b.Line(c.Timestamp)
	}
	if c.ClientName != "" {
		client := c.ClientName
		if c.ClientPhone != "" {
			client += " - " + c.ClientPhone
		}
		b.Line(client)
	}
	b.Rule()

	for _, item := range c.Items {
		left := fmt.Sprintf("%dx %s", item.Quantity, item.Description)
		b.PairLine(left, item.Price.StringFixed(2))
	}
	b.Rule()

	if c.Total != nil {
		b.Align(AlignRight).Bold(true)
		b.Line(fmt.Sprintf("TOTAL: %s EUR", c.Total.StringFixed(2)))
		b.Bold(false).Align(AlignLeft)
	}
	if c.Footer != "" {
		b.Align(AlignCenter).Line(c.Footer).Align(AlignLeft)
	}
	if len(c.Items) > 0 {
		b.Align(AlignCenter).Line(thanksLine).Align(AlignLeft)
	}

	b.Feed(3)
	if c.OpenDrawer && desc.Capabilities.HasCashDrawer {
		b.DrawerKick()
	}
	if desc.Capabilities.HasCutter {
		b.Cut()
	}
	return b.Bytes()
}
