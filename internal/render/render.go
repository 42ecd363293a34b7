// Package render produces the printable PDF of an invoice.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/gst"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageOptions describes the printed page
type PageOptions struct {
	PaperWidth      float64 // inches
	PaperHeight     float64 // inches
	MarginPx        float64
	PrintBackground bool
}

// A4 is the page every generated document is printed on
var A4 = PageOptions{PaperWidth: 8.27, PaperHeight: 11.69, MarginPx: 20, PrintBackground: true}

// Renderer turns an HTML document into PDF bytes
type Renderer interface {
	RenderPDF(ctx context.Context, html string, opts PageOptions) ([]byte, error)
}

// Generator fills the layout for an invoice's kind and hands it to a Renderer
type Generator struct {
	business  document.Business
	renderer  Renderer
	templates map[document.Kind]*template.Template
}

// NewGenerator parses the embedded layouts
func NewGenerator(business document.Business, renderer Renderer) (*Generator, error) {
	base, err := template.New("layout.html").Funcs(template.FuncMap{
		"inr": FormatINR,
		"qty": FormatQuantity,
	}).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}

	g := &Generator{
		business:  business,
		renderer:  renderer,
		templates: make(map[document.Kind]*template.Template, len(document.Kinds)),
	}
	for _, kind := range document.Kinds {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning layout: %w", err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+string(kind)+".html"); err != nil {
			return nil, fmt.Errorf("parsing %s layout: %w", kind, err)
		}
		g.templates[kind] = t
	}
	return g, nil
}

type lineView struct {
	Sl int
	gst.TaxedLineItem
}

type pageView struct {
	Title         string
	Business      document.Business
	Invoice       *gst.Invoice
	Lines         []lineView
	Intrastate    bool
	AmountInWords string
}

// HTML renders the document markup for inv without printing it
func (g *Generator) HTML(inv *gst.Invoice) (string, error) {
	kind := inv.Kind
	if kind == "" {
		kind = document.SalesInvoice
	}
	t, ok := g.templates[kind]
	if !ok {
		return "", fmt.Errorf("no layout for document type %q", kind)
	}

	view := pageView{
		Title:         kind.Title(),
		Business:      g.business,
		Invoice:       inv,
		Lines:         make([]lineView, 0, len(inv.Items)),
		Intrastate:    inv.TaxType == gst.Intrastate,
		AmountInWords: gst.AmountToWords(inv.GrandTotal),
	}
	for i, item := range inv.Items {
		view.Lines = append(view.Lines, lineView{Sl: i + 1, TaxedLineItem: item})
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", view); err != nil {
		return "", fmt.Errorf("executing %s layout: %w", kind, err)
	}
	return buf.String(), nil
}

// Generate renders inv to PDF. Failures are reported as generation errors and never retried.
func (g *Generator) Generate(ctx context.Context, inv *gst.Invoice) ([]byte, error) {
	html, err := g.HTML(inv)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGeneration, "building invoice markup", err)
	}

	pdf, err := g.renderer.RenderPDF(ctx, html, A4)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGeneration, "rendering PDF", err)
	}
	return pdf, nil
}
