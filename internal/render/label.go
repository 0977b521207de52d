package render

import (
	"fmt"
	"html/template"
	"os"

	"github.com/repairmind/print-agent/internal/job"
)

const (
	defaultLabelWidthMM  = 62.0
	defaultLabelHeightMM = 29.0
)

// The HTML label is sized to the exact physical dimensions so the silent
// print path maps 1:1 onto the media.
var labelTemplate = template.Must(template.New("label").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  @page { size: {{.WidthMM}}mm {{.HeightMM}}mm; margin: 0; }
  html, body { width: {{.WidthMM}}mm; height: {{.HeightMM}}mm; margin: 0; padding: 0; }
  body { font-family: Arial, sans-serif; overflow: hidden; }
  .label { padding: 1mm 2mm; }
  .title { font-size: 3.2mm; font-weight: bold; white-space: nowrap; }
  .subtitle { font-size: 2.6mm; }
  .sku { font-size: 2.4mm; color: #333; }
  .price { font-size: 3.6mm; font-weight: bold; }
  .barcode { font-family: "Libre Barcode 128", monospace; font-size: 5mm; letter-spacing: 0; }
</style>
</head>
<body>
<div class="label">
  <div class="title">{{.Title}}</div>
  {{if .Subtitle}}<div class="subtitle">{{.Subtitle}}</div>{{end}}
  {{if .SKU}}<div class="sku">{{.SKU}}</div>{{end}}
  {{if .Price}}<div class="price">{{.Price}}</div>{{end}}
  {{if .Barcode}}<div class="barcode">{{.Barcode}}</div>{{end}}
</div>
</body>
</html>
`))

type labelData struct {
	WidthMM  float64
	HeightMM float64
	Title    string
	Subtitle string
	SKU      string
	Price    string
	Barcode  string
}

// BuildLabelHTML writes an HTML label at the exact physical size requested by
// the job options, defaulting to 62×29 mm landscape.
func BuildLabelHTML(c *Content, opts *job.Options, path string) (widthMM, heightMM float64, err error) {
	widthMM, heightMM = defaultLabelWidthMM, defaultLabelHeightMM
	if opts != nil {
		if opts.LabelWidthMM > 0 {
			widthMM = opts.LabelWidthMM
		}
		if opts.LabelHeightMM > 0 {
			heightMM = opts.LabelHeightMM
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, 0, fmt.Errorf("create label file: %w", err)
	}
	defer f.Close()

	data := labelData{
		WidthMM:  widthMM,
		HeightMM: heightMM,
		Title:    c.Title,
		Subtitle: c.Subtitle,
		SKU:      c.SKU,
		Price:    c.Price,
		Barcode:  c.Barcode,
	}
	if err := labelTemplate.Execute(f, data); err != nil {
		return 0, 0, fmt.Errorf("render label template: %w", err)
	}
	return widthMM, heightMM, nil
}
