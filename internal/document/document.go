package document

import "fmt"

// Kind is the type of document the user wants generated from a photo
type Kind string

const (
	SalesInvoice    Kind = "sales_invoice"
	PurchaseOrder   Kind = "purchase_order"
	DeliveryChallan Kind = "delivery_challan"
)

// Kinds lists every supported output document kind
var Kinds = []Kind{SalesInvoice, PurchaseOrder, DeliveryChallan}

// ParseKind validates a document kind, defaulting an empty value to SalesInvoice
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return SalesInvoice, nil
	}
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown document type: %q", s)
}

// Title returns the heading printed on generated documents
func (k Kind) Title() string {
	switch k {
	case PurchaseOrder:
		return "Purchase Order"
	case DeliveryChallan:
		return "Delivery Challan"
	default:
		return "Tax Invoice"
	}
}

// NumberPrefix returns the prefix used for document numbers of this kind
func (k Kind) NumberPrefix() string {
	switch k {
	case PurchaseOrder:
		return "PO"
	case DeliveryChallan:
		return "DC"
	default:
		return "INV"
	}
}

// Business identifies the company issuing the documents
type Business struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	GSTIN   string `json:"gstin"`
	State   string `json:"state"`
}

// LineItem is a single extracted row of a bill, before any tax is applied
type LineItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Rate     float64 `json:"rate"`
	Amount   float64 `json:"amount"`
}

// Field is an extra labelled value found on a document (vehicle number, weights, ...)
type Field struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Value      string `json:"value"`
	Confidence string `json:"confidence,omitempty"`
}

// MultiDocumentInfo describes how several documents found in one photo relate
type MultiDocumentInfo struct {
	Count        int    `json:"count"`
	Relationship string `json:"relationship"`
	LinkNote     string `json:"link_note,omitempty"`
}

// SingleDocument is the relationship info of a photo holding one document
func SingleDocument() MultiDocumentInfo {
	return MultiDocumentInfo{Count: 1, Relationship: "single"}
}

// ExtractedDocument is the canonical representation of one document read from a photo
type ExtractedDocument struct {
	PartyName        string            `json:"party_name"`
	Date             string            `json:"date,omitempty"`
	Time             string            `json:"time,omitempty"`
	Items            []LineItem        `json:"items"`
	Confidence       float64           `json:"confidence"`
	DocumentType     string            `json:"document_type"`
	Industry         string            `json:"industry,omitempty"`
	Summary          string            `json:"summary,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	AdditionalFields []Field           `json:"additional_fields,omitempty"`
	CrossedOut       int               `json:"crossed_out,omitempty"`
	Corrections      int               `json:"corrections,omitempty"`
	TotalAmount      float64           `json:"total_amount,omitempty"`
	MultiDocument    MultiDocumentInfo `json:"multi_document"`
}

// Extraction is everything read from one photo. Primary points at the first document.
type Extraction struct {
	Primary       *ExtractedDocument  `json:"-"`
	Documents     []ExtractedDocument `json:"documents"`
	MultiDocument MultiDocumentInfo   `json:"multi_document"`
}

// NewExtraction builds an Extraction whose primary document is the first of docs
func NewExtraction(docs []ExtractedDocument, multi MultiDocumentInfo) *Extraction {
	e := &Extraction{Documents: docs, MultiDocument: multi}
	if len(docs) > 0 {
		e.Primary = &e.Documents[0]
	}
	return e
}
