package telegram

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/gst"
	"github.com/IamSmokeY/SnapBooks/internal/pipeline"
	"github.com/IamSmokeY/SnapBooks/internal/render"
)

var sourceLabels = map[string]string{
	"handwritten_kata": "✍️ Handwritten Kata",
	"weighbridge_slip": "⚖️ Weighbridge Slip",
	"tax_invoice":      "🧾 Tax Invoice",
	"delivery_challan": "🚚 Delivery Challan",
	"purchase_order":   "📦 Purchase Order",
	"receipt":          "🧾 Receipt",
	"quotation":        "📝 Quotation",
	"other":            "📄 Document",
}

// maxPreviewFields caps the additional fields listed in a preview
const maxPreviewFields = 6

func escape(s string) string {
	return html.EscapeString(s)
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func confidenceBadge(c float64) string {
	switch {
	case c >= 0.85:
		return "🎯"
	case c >= 0.60:
		return "⚠️"
	default:
		return "❗"
	}
}

// formatPreview renders what was read from a photo for the user to confirm
func formatPreview(e *document.Extraction) string {
	doc := e.Primary
	if doc == nil {
		return "📋 <b>Extracted Data</b>\n\nNothing could be read from this photo."
	}

	var sb strings.Builder
	sb.WriteString("📋 <b>Extracted Data</b>\n\n")

	if doc.DocumentType != "" {
		label, ok := sourceLabels[doc.DocumentType]
		if !ok {
			label = doc.DocumentType
		}
		fmt.Fprintf(&sb, "<b>Type:</b> %s\n", escape(label))
	}
	fmt.Fprintf(&sb, "👤 %s\n", escape(orDefault(doc.PartyName, "Unknown")))
	fmt.Fprintf(&sb, "📅 %s\n", escape(orDefault(doc.Date, "Not specified")))
	if doc.Summary != "" {
		fmt.Fprintf(&sb, "📝 %s\n", escape(doc.Summary))
	}
	sb.WriteString("\n")

	for i, item := range doc.Items {
		fmt.Fprintf(&sb, "<b>%d. %s</b>\n", i+1, escape(item.Name))
		fmt.Fprintf(&sb, "   Qty: %s %s\n", render.FormatQuantity(item.Quantity), escape(item.Unit))
		if item.Rate > 0 {
			fmt.Fprintf(&sb, "   Rate: ₹%s/%s\n", render.FormatINR(item.Rate), escape(item.Unit))
		}
		if item.Amount > 0 {
			fmt.Fprintf(&sb, "   Amount: ₹%s\n", render.FormatINR(item.Amount))
		}
	}
	if len(doc.Items) > 0 {
		sb.WriteString("\n")
	}

	if len(doc.AdditionalFields) > 0 {
		sb.WriteString("📎 <b>Additional Details:</b>\n")
		for i, f := range doc.AdditionalFields {
			if i == maxPreviewFields {
				break
			}
			warn := ""
			if f.Confidence == "low" {
				warn = " ⚠️"
			}
			fmt.Fprintf(&sb, "  • %s: %s%s\n", escape(orDefault(f.Label, f.Key)), escape(f.Value), warn)
		}
		sb.WriteString("\n")
	}

	if e.MultiDocument.Count > 1 {
		fmt.Fprintf(&sb, "📑 <b>%d documents detected</b> (%s)\n", e.MultiDocument.Count, escape(e.MultiDocument.Relationship))
		if e.MultiDocument.LinkNote != "" {
			fmt.Fprintf(&sb, "   %s\n", escape(e.MultiDocument.LinkNote))
		}
		sb.WriteString("   Only the first document is used.\n\n")
	}

	if doc.CrossedOut > 0 {
		fmt.Fprintf(&sb, "🚫 <b>%d crossed-out item(s) found</b>, excluded from totals\n\n", doc.CrossedOut)
	}

	fmt.Fprintf(&sb, "%s <b>Confidence:</b> %d%%", confidenceBadge(doc.Confidence), int(math.Round(doc.Confidence*100)))
	if doc.Confidence < 0.85 {
		sb.WriteString("\n\n⚠️ <b>Please verify the data carefully</b>")
	}
	sb.WriteString("\n\n<b>Select document type and confirm:</b>")
	return sb.String()
}

func rateLabel(items []gst.TaxedLineItem) string {
	rates := map[float64]bool{}
	for _, it := range items {
		rates[it.GSTRate] = true
	}
	if len(rates) == 1 {
		for r := range rates {
			return fmt.Sprintf("%g%%", r)
		}
	}
	return "Mixed"
}

// formatSummary renders a completed run
func formatSummary(result *pipeline.Result) string {
	inv := result.Invoice

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ <b>%s %s Created!</b>\n\n", inv.Kind.Title(), escape(orDefault(inv.InvoiceNumber, "N/A")))
	fmt.Fprintf(&sb, "👤 <b>Customer:</b> %s\n", escape(inv.CustomerName))
	fmt.Fprintf(&sb, "📅 <b>Date:</b> %s\n", escape(inv.Date))
	fmt.Fprintf(&sb, "📍 <b>Tax Type:</b> %s\n\n", strings.ToUpper(string(inv.TaxType)))

	fmt.Fprintf(&sb, "<b>Items:</b> %d (GST %s)\n", len(inv.Items), rateLabel(inv.Items))
	for i, it := range inv.Items {
		fmt.Fprintf(&sb, "%d. %s - %s %s @ ₹%s (%g%% GST)\n", i+1, escape(it.Name),
			render.FormatQuantity(it.Quantity), escape(it.Unit), render.FormatINR(it.Rate), it.GSTRate)
	}

	fmt.Fprintf(&sb, "\n💰 <b>Subtotal:</b> ₹%s\n", render.FormatINR(inv.Subtotal))
	if inv.TaxType == gst.Intrastate {
		fmt.Fprintf(&sb, "📊 <b>CGST:</b> ₹%s\n", render.FormatINR(inv.CGST))
		fmt.Fprintf(&sb, "📊 <b>SGST:</b> ₹%s\n", render.FormatINR(inv.SGST))
	} else {
		fmt.Fprintf(&sb, "📊 <b>IGST:</b> ₹%s\n", render.FormatINR(inv.IGST))
	}
	fmt.Fprintf(&sb, "💵 <b>Grand Total:</b> ₹%s\n\n", render.FormatINR(inv.GrandTotal))

	for _, w := range result.Validation.Warnings {
		fmt.Fprintf(&sb, "⚠️ %s\n", escape(w))
	}
	if len(result.Validation.Warnings) > 0 {
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "⏱️ <b>Processing Time:</b> %dms", result.Metadata.TotalDurationMs)
	return sb.String()
}
