package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
	"github.com/IamSmokeY/SnapBooks/internal/document"
)

const (
	defaultItemName   = "Unknown Item"
	defaultUnit       = "pcs"
	defaultPartyName  = "Unknown"
	defaultConfidence = 0.75
)

// wire shapes returned by the extraction model

type response struct {
	Documents     json.RawMessage `json:"documents"`
	MultiDocument *wireMulti      `json:"multi_document"`

	// flat shape used by older prompts
	SupplierOrCustomer Field           `json:"supplier_or_customer"`
	Items              json.RawMessage `json:"items"`
	Date               Field           `json:"date"`
	Notes              Field           `json:"notes"`
	Confidence         Field           `json:"confidence"`

	Error      Field `json:"error"`
	Suggestion Field `json:"suggestion"`
}

type wireDocument struct {
	DocumentType     string            `json:"document_type"`
	Industry         string            `json:"industry"`
	Summary          string            `json:"summary"`
	Core             wireCore          `json:"core"`
	AdditionalFields []wireExtra       `json:"additional_fields"`
	CrossedOutItems  []json.RawMessage `json:"crossed_out_items"`
	Corrections      []json.RawMessage `json:"corrections"`
}

type wireCore struct {
	PartyName   Field      `json:"party_name"`
	Date        Field      `json:"date"`
	Time        Field      `json:"time"`
	Items       []wireItem `json:"items"`
	TotalAmount Field      `json:"total_amount"`
}

type wireItem struct {
	Name     Field `json:"name"`
	Quantity Field `json:"quantity"`
	Unit     Field `json:"unit"`
	Rate     Field `json:"rate"`
	Amount   Field `json:"amount"`
}

type wireExtra struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Value      Field  `json:"value"`
	Confidence string `json:"confidence"`
}

type wireMulti struct {
	Count        Field `json:"count"`
	Relationship Field `json:"relationship"`
	LinkNote     Field `json:"link_note"`
}

// ParseResponse converts a raw model answer into the canonical extraction.
//
// Three shapes are recognized: a "documents" list with confidence-tagged fields, the older
// flat shape with "supplier_or_customer"/"items", and an {"error", "suggestion"} marker.
// The marker yields an ExtractionUnrecognizable error carrying the suggestion. Anything else
// yields an ExtractionSchema error.
func ParseResponse(raw []byte) (*document.Extraction, error) {
	text, err := cleanResponse(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExtractionSchema, "malformed extraction response", err)
	}

	var resp response
	if err := json.Unmarshal(text, &resp); err != nil {
		return nil, apperr.Wrap(apperr.KindExtractionSchema, "malformed extraction response", err)
	}

	switch {
	case isSet(resp.Documents):
		return parseVersioned(resp)
	case resp.SupplierOrCustomer.String() != "" || isSet(resp.Items):
		return parseLegacy(resp)
	case resp.Error.Truthy():
		msg := resp.Suggestion.String()
		if msg == "" {
			msg = "Image could not be processed"
		}
		return nil, apperr.New(apperr.KindExtractionUnrecognizable, msg)
	}

	return nil, apperr.New(apperr.KindExtractionSchema, "unrecognized response format")
}

func isSet(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func parseVersioned(resp response) (*document.Extraction, error) {
	var docs []wireDocument
	if err := json.Unmarshal(resp.Documents, &docs); err != nil {
		return nil, apperr.Wrap(apperr.KindExtractionSchema, "malformed documents list", err)
	}
	if len(docs) == 0 {
		return nil, apperr.New(apperr.KindExtractionUnrecognizable, "No document found in the photo. Please make sure the bill is in frame.")
	}

	multi := document.SingleDocument()
	if resp.MultiDocument != nil {
		if n := int(resp.MultiDocument.Count.Number()); n > 0 {
			multi.Count = n
		}
		if rel := resp.MultiDocument.Relationship.String(); rel != "" {
			multi.Relationship = rel
		}
		multi.LinkNote = resp.MultiDocument.LinkNote.String()
	}

	out := make([]document.ExtractedDocument, 0, len(docs))
	for _, d := range docs {
		doc := flatten(d)
		doc.MultiDocument = multi
		out = append(out, doc)
	}
	return document.NewExtraction(out, multi), nil
}

func flatten(d wireDocument) document.ExtractedDocument {
	core := d.Core

	var scores []float64
	for _, f := range []Field{core.PartyName, core.Date, core.TotalAmount} {
		if f.Present() {
			scores = append(scores, f.Score())
		}
	}

	items := make([]document.LineItem, 0, len(core.Items))
	for _, it := range core.Items {
		scores = append(scores, it.Name.Score(), it.Quantity.Score())
		items = append(items, newLineItem(it.Name.String(), it.Quantity.Number(), it.Unit.String(), it.Rate.Number(), it.Amount.Number()))
	}

	fields := make([]document.Field, 0, len(d.AdditionalFields))
	notes := make([]string, 0, len(d.AdditionalFields))
	for _, f := range d.AdditionalFields {
		fields = append(fields, document.Field{Key: f.Key, Label: f.Label, Value: f.Value.String(), Confidence: f.Confidence})
		notes = append(notes, fmt.Sprintf("%s: %s", f.Label, f.Value.String()))
	}

	doc := document.ExtractedDocument{
		PartyName:        orDefault(core.PartyName.String(), defaultPartyName),
		Date:             core.Date.String(),
		Time:             core.Time.String(),
		Items:            items,
		Confidence:       meanScore(scores),
		DocumentType:     orDefault(d.DocumentType, "other"),
		Industry:         orDefault(d.Industry, "general"),
		Summary:          d.Summary,
		Notes:            strings.Join(notes, ", "),
		AdditionalFields: fields,
		CrossedOut:       len(d.CrossedOutItems),
		Corrections:      len(d.Corrections),
		TotalAmount:      core.TotalAmount.Number(),
	}
	if doc.Notes == "" {
		doc.Notes = d.Summary
	}
	return doc
}

func parseLegacy(resp response) (*document.Extraction, error) {
	var raw []wireItem
	if isSet(resp.Items) {
		if err := json.Unmarshal(resp.Items, &raw); err != nil {
			return nil, apperr.Wrap(apperr.KindExtractionSchema, "malformed items list", err)
		}
	}

	items := make([]document.LineItem, 0, len(raw))
	for _, it := range raw {
		items = append(items, newLineItem(it.Name.String(), it.Quantity.Number(), it.Unit.String(), it.Rate.Number(), it.Amount.Number()))
	}

	confidence := resp.Confidence.Number()
	if confidence <= 0 {
		confidence = defaultConfidence
	}

	doc := document.ExtractedDocument{
		PartyName:     orDefault(resp.SupplierOrCustomer.String(), defaultPartyName),
		Date:          resp.Date.String(),
		Items:         items,
		Confidence:    math.Min(confidence, 1),
		DocumentType:  "other",
		Notes:         resp.Notes.String(),
		MultiDocument: document.SingleDocument(),
	}
	return document.NewExtraction([]document.ExtractedDocument{doc}, document.SingleDocument()), nil
}

// newLineItem applies item defaults and derives a missing amount from quantity and rate
func newLineItem(name string, qty float64, unit string, rate, amount float64) document.LineItem {
	if amount == 0 && qty > 0 && rate > 0 {
		amount = decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(rate)).Round(2).InexactFloat64()
	}
	return document.LineItem{
		Name:     orDefault(name, defaultItemName),
		Quantity: qty,
		Unit:     strings.ToLower(orDefault(unit, defaultUnit)),
		Rate:     rate,
		Amount:   amount,
	}
}

func meanScore(scores []float64) float64 {
	if len(scores) == 0 {
		return defaultConfidence
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return math.Round(sum/float64(len(scores))*100) / 100
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
