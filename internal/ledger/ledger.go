// Package ledger builds Tally voucher import files for computed invoices.
package ledger

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/gst"
)

// VoucherType is the Tally voucher an invoice is imported as
type VoucherType string

const (
	Sales    VoucherType = "Sales"
	Purchase VoucherType = "Purchase"
)

// VoucherTypeFor maps a document kind to its voucher. Challans move stock out like a sale.
func VoucherTypeFor(kind document.Kind) VoucherType {
	if kind == document.PurchaseOrder {
		return Purchase
	}
	return Sales
}

const (
	defaultGodown = "Main Godown"
	defaultBatch  = "Primary Batch"
)

type envelope struct {
	XMLName xml.Name `xml:"ENVELOPE"`
	Header  header   `xml:"HEADER"`
	Body    body     `xml:"BODY"`
}

type header struct {
	TallyRequest string `xml:"TALLYREQUEST"`
}

type body struct {
	ImportData importData `xml:"IMPORTDATA"`
}

type importData struct {
	RequestDesc requestDesc `xml:"REQUESTDESC"`
	RequestData requestData `xml:"REQUESTDATA"`
}

type requestDesc struct {
	ReportName     string `xml:"REPORTNAME"`
	CurrentCompany string `xml:"STATICVARIABLES>SVCURRENTCOMPANY"`
}

type requestData struct {
	TallyMessage tallyMessage `xml:"TALLYMESSAGE"`
}

type tallyMessage struct {
	UDF     string  `xml:"xmlns:UDF,attr"`
	Voucher voucher `xml:"VOUCHER"`
}

type voucher struct {
	VchType          string           `xml:"VCHTYPE,attr"`
	Action           string           `xml:"ACTION,attr"`
	ObjView          string           `xml:"OBJVIEW,attr"`
	Date             string           `xml:"DATE"`
	VoucherTypeName  string           `xml:"VOUCHERTYPENAME"`
	VoucherNumber    string           `xml:"VOUCHERNUMBER"`
	PartyLedgerName  string           `xml:"PARTYLEDGERNAME"`
	Reference        string           `xml:"REFERENCE"`
	StateName        string           `xml:"STATENAME,omitempty"`
	PlaceOfSupply    string           `xml:"PLACEOFSUPPLY,omitempty"`
	Narration        string           `xml:"NARRATION"`
	LedgerEntries    []ledgerEntry    `xml:"ALLLEDGERENTRIES.LIST"`
	InventoryEntries []inventoryEntry `xml:"INVENTORYENTRIES.LIST"`
}

type ledgerEntry struct {
	LedgerName       string `xml:"LEDGERNAME"`
	IsDeemedPositive string `xml:"ISDEEMEDPOSITIVE"`
	Amount           string `xml:"AMOUNT"`
}

type inventoryEntry struct {
	StockItemName         string      `xml:"STOCKITEMNAME"`
	IsDeemedPositive      string      `xml:"ISDEEMEDPOSITIVE"`
	Rate                  string      `xml:"RATE"`
	Amount                string      `xml:"AMOUNT"`
	ActualQty             string      `xml:"ACTUALQTY"`
	BilledQty             string      `xml:"BILLEDQTY"`
	BatchAllocations      batch       `xml:"BATCHALLOCATIONS.LIST"`
	AccountingAllocations ledgerEntry `xml:"ACCOUNTINGALLOCATIONS.LIST"`
}

type batch struct {
	GodownName string `xml:"GODOWNNAME"`
	BatchName  string `xml:"BATCHNAME"`
	Amount     string `xml:"AMOUNT"`
	ActualQty  string `xml:"ACTUALQTY"`
}

// TimeSource provides the current time for undated invoices
type TimeSource interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Generator writes one voucher per invoice for the configured company
type Generator struct {
	company    string
	timeSource TimeSource
}

// NewGenerator creates a Generator importing into the named company
func NewGenerator(company string) *Generator {
	return NewGeneratorWithDeps(company, systemClock{})
}

// NewGeneratorWithDeps creates a Generator with a custom clock for testing
func NewGeneratorWithDeps(company string, timeSrc TimeSource) *Generator {
	return &Generator{company: company, timeSource: timeSrc}
}

// Generate builds the voucher XML for inv. The signed ledger amounts always sum to zero.
func (g *Generator) Generate(inv *gst.Invoice) ([]byte, error) {
	if inv == nil {
		return nil, apperr.New(apperr.KindGeneration, "no invoice to export")
	}

	vt := VoucherTypeFor(inv.Kind)
	// sales credit revenue and tax, purchases debit them
	sign := decimal.NewFromInt(1)
	deemed, partyDeemed := "No", "Yes"
	account := "Sales Account"
	if vt == Purchase {
		sign = sign.Neg()
		deemed, partyDeemed = "Yes", "No"
		account = "Purchase Account"
	}

	taxes := taxEntries(inv)
	subtotal := money(inv.Subtotal)
	totalTax := decimal.Zero
	for _, t := range taxes {
		totalTax = totalTax.Add(t.amount)
	}

	v := voucher{
		VchType:         string(vt),
		Action:          "Create",
		ObjView:         "Invoice Voucher View",
		Date:            g.tallyDate(inv.Date),
		VoucherTypeName: string(vt),
		VoucherNumber:   inv.InvoiceNumber,
		PartyLedgerName: inv.CustomerName,
		Reference:       inv.InvoiceNumber,
		StateName:       inv.CustomerState,
		PlaceOfSupply:   inv.CustomerState,
		Narration:       fmt.Sprintf("%s - %s", inv.Kind.Title(), inv.CustomerName),
	}

	v.LedgerEntries = append(v.LedgerEntries,
		ledgerEntry{LedgerName: inv.CustomerName, IsDeemedPositive: partyDeemed, Amount: amount(subtotal.Add(totalTax).Mul(sign).Neg())},
		ledgerEntry{LedgerName: account, IsDeemedPositive: deemed, Amount: amount(subtotal.Mul(sign))},
	)
	for _, t := range taxes {
		v.LedgerEntries = append(v.LedgerEntries, ledgerEntry{LedgerName: t.name, IsDeemedPositive: deemed, Amount: amount(t.amount.Mul(sign))})
	}

	for _, item := range inv.Items {
		lineAmount := amount(money(item.Amount).Mul(sign))
		qty := fmt.Sprintf("%s %s", decimal.NewFromFloat(item.Quantity).String(), item.Unit)
		v.InventoryEntries = append(v.InventoryEntries, inventoryEntry{
			StockItemName:    item.Name,
			IsDeemedPositive: deemed,
			Rate:             fmt.Sprintf("%s/%s", money(item.Rate).StringFixed(2), item.Unit),
			Amount:           lineAmount,
			ActualQty:        qty,
			BilledQty:        qty,
			BatchAllocations: batch{
				GodownName: defaultGodown,
				BatchName:  defaultBatch,
				Amount:     lineAmount,
				ActualQty:  qty,
			},
			AccountingAllocations: ledgerEntry{LedgerName: account, IsDeemedPositive: deemed, Amount: lineAmount},
		})
	}

	env := envelope{
		Header: header{TallyRequest: "Import Data"},
		Body: body{ImportData: importData{
			RequestDesc: requestDesc{ReportName: "Vouchers", CurrentCompany: g.company},
			RequestData: requestData{TallyMessage: tallyMessage{UDF: "TallyUDF", Voucher: v}},
		}},
	}

	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGeneration, "encoding voucher XML", err)
	}
	return append([]byte(xml.Header), out...), nil
}

type taxEntry struct {
	name   string
	amount decimal.Decimal
}

// taxEntries groups the invoice's tax by component and effective rate, e.g. "CGST 9%"
func taxEntries(inv *gst.Invoice) []taxEntry {
	type key struct {
		component string
		rate      string
	}
	sums := map[key]decimal.Decimal{}
	var order []key

	add := func(component string, rate decimal.Decimal, value float64) {
		v := money(value)
		if v.IsZero() {
			return
		}
		k := key{component, rate.String()}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] = sums[k].Add(v)
	}

	for _, item := range inv.Items {
		rate := decimal.NewFromFloat(item.GSTRate)
		half := rate.Div(decimal.NewFromInt(2))
		add("CGST", half, item.CGST)
		add("SGST", half, item.SGST)
		add("IGST", rate, item.IGST)
	}

	componentOrder := map[string]int{"CGST": 0, "SGST": 1, "IGST": 2}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].rate != order[j].rate {
			ri, _ := decimal.NewFromString(order[i].rate)
			rj, _ := decimal.NewFromString(order[j].rate)
			return ri.LessThan(rj)
		}
		return componentOrder[order[i].component] < componentOrder[order[j].component]
	})

	out := make([]taxEntry, 0, len(order))
	for _, k := range order {
		out = append(out, taxEntry{name: fmt.Sprintf("%s %s%%", k.component, k.rate), amount: sums[k]})
	}
	return out
}

// tallyDate converts DD/MM/YYYY or ISO dates to YYYYMMDD, falling back to today
func (g *Generator) tallyDate(date string) string {
	date = strings.TrimSpace(date)
	for _, layout := range []string{"02/01/2006", "2/1/2006", "02-01-2006", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("20060102")
		}
	}
	return g.timeSource.Now().Format("20060102")
}

func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
