// Package gst computes Indian GST invoices from extracted bill data.
package gst

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/IamSmokeY/SnapBooks/internal/document"
)

// TaxType selects how GST is split between the central and state governments
type TaxType string

const (
	Intrastate TaxType = "intrastate"
	Interstate TaxType = "interstate"
)

// DateLayout is the date format printed on invoices
const DateLayout = "02/01/2006"

// TaxedLineItem is a line item after HSN lookup and tax computation.
// LineTotal always equals Amount plus TotalTax.
type TaxedLineItem struct {
	document.LineItem
	HSNCode   string  `json:"hsn_code"`
	GSTRate   float64 `json:"gst_rate"`
	CGST      float64 `json:"cgst"`
	SGST      float64 `json:"sgst"`
	IGST      float64 `json:"igst"`
	TotalTax  float64 `json:"total_tax"`
	LineTotal float64 `json:"line_total"`
}

// Invoice is a fully computed GST invoice. GrandTotal always equals Subtotal plus TotalTax.
type Invoice struct {
	InvoiceNumber string          `json:"invoice_number"`
	Kind          document.Kind   `json:"document_type"`
	CustomerName  string          `json:"customer_name"`
	Date          string          `json:"date"`
	Items         []TaxedLineItem `json:"items"`
	TaxType       TaxType         `json:"tax_type"`
	Subtotal      float64         `json:"subtotal"`
	CGST          float64         `json:"cgst"`
	SGST          float64         `json:"sgst"`
	IGST          float64         `json:"igst"`
	TotalTax      float64         `json:"total_tax"`
	GrandTotal    float64         `json:"grand_total"`
	BusinessState string          `json:"business_state"`
	CustomerState string          `json:"customer_state"`
	Notes         string          `json:"notes,omitempty"`
}

// IDGenerator generates the random suffix of invoice numbers
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Engine computes invoices for a business registered in one home state
type Engine struct {
	homeState   string
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewEngine creates an Engine with random invoice numbers and the system clock
func NewEngine(homeState string) *Engine {
	return NewEngineWithDeps(homeState, uuidGenerator{}, systemClock{})
}

// NewEngineWithDeps creates an Engine with custom dependencies for testing
func NewEngineWithDeps(homeState string, idGen IDGenerator, timeSrc TimeSource) *Engine {
	return &Engine{
		homeState:   strings.TrimSpace(homeState),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// HomeState is the state the business is registered in
func (e *Engine) HomeState() string {
	return e.homeState
}

// DetermineTaxType returns Intrastate when the customer is in the home state or the
// customer state is unknown, Interstate otherwise.
func (e *Engine) DetermineTaxType(customerState string) TaxType {
	customer := normalize(customerState)
	if customer == "" || customer == normalize(e.homeState) {
		return Intrastate
	}
	return Interstate
}

// LookupTaxCode finds the HSN code and GST rate for a product name. It tries an exact
// match, then a partial match in either direction, then falls back to DefaultTaxCode.
func (e *Engine) LookupTaxCode(productName string) TaxCode {
	term := normalize(productName)
	if term == "" {
		return DefaultTaxCode
	}

	for _, entry := range hsnTable {
		if entry.name == term {
			return TaxCode{HSN: entry.hsn, Rate: entry.rate, Matched: true}
		}
	}
	for _, entry := range hsnTable {
		if strings.Contains(term, entry.name) || strings.Contains(entry.name, term) {
			return TaxCode{HSN: entry.hsn, Rate: entry.rate, Matched: true}
		}
	}

	slog.Debug("no HSN match, using default", "product", productName, "hsn", DefaultTaxCode.HSN)
	return DefaultTaxCode
}

// ComputeLine applies the product's GST rate to one line item
func (e *Engine) ComputeLine(item document.LineItem, taxType TaxType) TaxedLineItem {
	code := e.LookupTaxCode(item.Name)

	base := money(item.Amount)
	if base.IsZero() {
		base = decimal.NewFromFloat(item.Quantity).Mul(decimal.NewFromFloat(item.Rate)).Round(2)
	}
	gst := base.Mul(decimal.NewFromFloat(code.Rate)).Div(decimal.NewFromInt(100)).Round(2)

	line := TaxedLineItem{
		LineItem: item,
		HSNCode:  code.HSN,
		GSTRate:  code.Rate,
		TotalTax: gst.InexactFloat64(),
	}
	line.Amount = base.InexactFloat64()
	line.LineTotal = base.Add(gst).InexactFloat64()

	if taxType == Interstate {
		line.IGST = gst.InexactFloat64()
		return line
	}

	// CGST takes the rounded half so the two halves always add back to the line GST
	cgst := gst.Div(decimal.NewFromInt(2)).Round(2)
	line.CGST = cgst.InexactFloat64()
	line.SGST = gst.Sub(cgst).InexactFloat64()
	return line
}

// Aggregate computes every line of doc and sums them into an invoice. Identity fields
// (number, date, states) are left for Calculate to fill.
func (e *Engine) Aggregate(doc *document.ExtractedDocument, taxType TaxType) *Invoice {
	inv := &Invoice{
		CustomerName: doc.PartyName,
		Date:         doc.Date,
		TaxType:      taxType,
		Notes:        doc.Notes,
		Items:        make([]TaxedLineItem, 0, len(doc.Items)),
	}

	var subtotal, cgst, sgst, igst decimal.Decimal
	for _, item := range doc.Items {
		line := e.ComputeLine(item, taxType)
		inv.Items = append(inv.Items, line)

		subtotal = subtotal.Add(money(line.Amount))
		cgst = cgst.Add(money(line.CGST))
		sgst = sgst.Add(money(line.SGST))
		igst = igst.Add(money(line.IGST))
	}

	totalTax := cgst.Add(sgst).Add(igst)
	inv.Subtotal = subtotal.InexactFloat64()
	inv.CGST = cgst.InexactFloat64()
	inv.SGST = sgst.InexactFloat64()
	inv.IGST = igst.InexactFloat64()
	inv.TotalTax = totalTax.InexactFloat64()
	inv.GrandTotal = subtotal.Add(totalTax).InexactFloat64()
	return inv
}

// Calculate produces a complete invoice of the given kind for doc. An empty customerState
// means the customer is in the home state.
func (e *Engine) Calculate(doc *document.ExtractedDocument, kind document.Kind, customerState string) *Invoice {
	taxType := e.DetermineTaxType(customerState)
	inv := e.Aggregate(doc, taxType)

	now := e.timeSource.Now()
	inv.Kind = kind
	inv.InvoiceNumber = fmt.Sprintf("%s-%s-%s", kind.NumberPrefix(), now.Format("20060102"), e.idGenerator.Generate())
	if strings.TrimSpace(inv.Date) == "" {
		inv.Date = now.Format(DateLayout)
	}
	inv.BusinessState = e.homeState
	inv.CustomerState = strings.TrimSpace(customerState)
	if inv.CustomerState == "" {
		inv.CustomerState = e.homeState
	}
	return inv
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// money converts a float amount to paise precision
func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}
