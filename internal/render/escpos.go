package render

import (
	"bytes"
	"strings"
)

// Dialect selects the command set of the target thermal printer.
type Dialect int

const (
	DialectEpson Dialect = iota
	DialectStar
)

// DialectFor picks STAR for printers whose system name carries the Star
// vendor markers; everything else speaks ESC/POS the EPSON way.
func DialectFor(systemName string) Dialect {
	name := strings.ToLower(systemName)
	if strings.Contains(name, "star") || strings.Contains(name, "tsp") {
		return DialectStar
	}
	return DialectEpson
}

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// ESCPOSBuilder accumulates a thermal command stream. Widths are column
// counts at the printer's base font.
type ESCPOSBuilder struct {
	buf     bytes.Buffer
	dialect Dialect
	width   int
}

func NewESCPOSBuilder(dialect Dialect, width int) *ESCPOSBuilder {
	if width <= 0 {
		width = 42
	}
	b := &ESCPOSBuilder{dialect: dialect, width: width}
	b.init()
	return b
}

func (b *ESCPOSBuilder) init() {
	b.buf.Write([]byte{0x1b, 0x40}) // ESC @
}

func (b *ESCPOSBuilder) Width() int { return b.width }

func (b *ESCPOSBuilder) Align(a Align) *ESCPOSBuilder {
	switch b.dialect {
	case DialectStar:
		b.buf.Write([]byte{0x1b, 0x1d, 0x61, byte(a)})
	default:
		b.buf.Write([]byte{0x1b, 0x61, byte(a)})
	}
	return b
}

func (b *ESCPOSBuilder) Bold(on bool) *ESCPOSBuilder {
	switch b.dialect {
	case DialectStar:
		if on {
			b.buf.Write([]byte{0x1b, 0x45})
		} else {
			b.buf.Write([]byte{0x1b, 0x46})
		}
	default:
		flag := byte(0)
		if on {
			flag = 1
		}
		b.buf.Write([]byte{0x1b, 0x45, flag})
	}
	return b
}

func (b *ESCPOSBuilder) DoubleHeight(on bool) *ESCPOSBuilder {
	switch b.dialect {
	case DialectStar:
		if on {
			b.buf.Write([]byte{0x1b, 0x69, 0x01, 0x01})
		} else {
			b.buf.Write([]byte{0x1b, 0x69, 0x00, 0x00})
		}
	default:
		if on {
			b.buf.Write([]byte{0x1d, 0x21, 0x11})
		} else {
			b.buf.Write([]byte{0x1d, 0x21, 0x00})
		}
	}
	return b
}

func (b *ESCPOSBuilder) Line(text string) *ESCPOSBuilder {
	b.buf.WriteString(text)
	b.buf.WriteByte('\n')
	return b
}

// PairLine renders left ↔ right on a single row, padding to the column width.
func (b *ESCPOSBuilder) PairLine(left, right string) *ESCPOSBuilder {
	pad := b.width - len([]rune(left)) - len([]rune(right))
	if pad < 1 {
		pad = 1
	}
	b.buf.WriteString(left)
	b.buf.WriteString(strings.Repeat(" ", pad))
	b.buf.WriteString(right)
	b.buf.WriteByte('\n')
	return b
}

func (b *ESCPOSBuilder) Rule() *ESCPOSBuilder {
	b.buf.WriteString(strings.Repeat("-", b.width))
	b.buf.WriteByte('\n')
	return b
}

func (b *ESCPOSBuilder) Feed(lines int) *ESCPOSBuilder {
	for i := 0; i < lines; i++ {
		b.buf.WriteByte('\n')
	}
	return b
}

// DrawerKick pulses the cash drawer on pin 2.
func (b *ESCPOSBuilder) DrawerKick() *ESCPOSBuilder {
	switch b.dialect {
	case DialectStar:
		b.buf.WriteByte(0x07) // BEL
	default:
		b.buf.Write([]byte{0x1b, 0x70, 0x00, 0x19, 0xfa})
	}
	return b
}

func (b *ESCPOSBuilder) Cut() *ESCPOSBuilder {
	switch b.dialect {
	case DialectStar:
		b.buf.Write([]byte{0x1b, 0x64, 0x03})
	default:
		b.buf.Write([]byte{0x1d, 0x56, 0x42, 0x00})
	}
	return b
}

func (b *ESCPOSBuilder) Bytes() []byte {
	return b.buf.Bytes()
}
