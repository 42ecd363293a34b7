// Package invoice persists generated invoices and their artifacts.
package invoice

import (
	"time"

	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/gst"
)

// Record is a stored invoice with links to its generated files
type Record struct {
	ID         string                      `json:"id"`
	Invoice    *gst.Invoice                `json:"invoice"`
	Extraction *document.ExtractedDocument `json:"extraction,omitempty"`
	Source     string                      `json:"source,omitempty"` // api, telegram
	PDFPath    string                      `json:"pdf_path,omitempty"`
	XMLPath    string                      `json:"xml_path,omitempty"`
	PDFURL     string                      `json:"pdf_url,omitempty"`
	XMLURL     string                      `json:"xml_url,omitempty"`
	CreatedAt  time.Time                   `json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// PDFPathFor is where the PDF of invoice id is uploaded
func PDFPathFor(id string) string {
	return "invoices/pdfs/" + id + ".pdf"
}

// XMLPathFor is where the ledger XML of invoice id is uploaded
func XMLPathFor(id string) string {
	return "invoices/xmls/" + id + ".xml"
}
