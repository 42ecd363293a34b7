package gst

import (
	"fmt"
	"strings"
)

// ValidationResult lists the problems found in an invoice. Errors make it invalid; warnings don't.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidateOptions relaxes validation for special cases
type ValidateOptions struct {
	// AllowZeroAmount suppresses the zero total warning (delivery challans, free samples)
	AllowZeroAmount bool
}

// Validate checks that inv is structurally sound and internally consistent. It never fails;
// every problem is reported in the result.
func Validate(inv *Invoice, opts ValidateOptions) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}
	if inv == nil {
		res.Errors = append(res.Errors, "Invoice is missing")
		return res
	}

	if strings.TrimSpace(inv.CustomerName) == "" {
		res.Errors = append(res.Errors, "Customer name is required")
	}
	if len(inv.Items) == 0 {
		res.Errors = append(res.Errors, "At least one item is required")
	}

	if inv.GrandTotal < 0 {
		res.Errors = append(res.Errors, "Invoice total cannot be negative")
	}
	if inv.GrandTotal == 0 && !opts.AllowZeroAmount {
		res.Warnings = append(res.Warnings, "Invoice total is zero - no payment required")
	}

	for i, item := range inv.Items {
		pos := i + 1
		if strings.TrimSpace(item.Name) == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: Name is required", pos))
		}
		if item.Quantity <= 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: Quantity must be a positive number", pos))
		}
		if item.Rate < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: Rate cannot be negative", pos))
		}
		if strings.TrimSpace(item.Unit) == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Item %d: Unit is recommended (e.g., pcs, kg)", pos))
		}
		if item.CGST < 0 || item.SGST < 0 || item.IGST < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: Tax cannot be negative", pos))
		}
		if msg := componentMismatch(inv.TaxType, item.CGST, item.SGST, item.IGST); msg != "" {
			res.Errors = append(res.Errors, fmt.Sprintf("Item %d: %s", pos, msg))
		}
	}

	if inv.CGST < 0 || inv.SGST < 0 || inv.IGST < 0 {
		res.Errors = append(res.Errors, "Tax totals cannot be negative")
	}
	if msg := componentMismatch(inv.TaxType, inv.CGST, inv.SGST, inv.IGST); msg != "" {
		res.Errors = append(res.Errors, msg)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func componentMismatch(taxType TaxType, cgst, sgst, igst float64) string {
	switch taxType {
	case Intrastate:
		if igst != 0 {
			return "IGST must be zero for intrastate transactions"
		}
	case Interstate:
		if cgst != 0 || sgst != 0 {
			return "CGST/SGST must be zero for interstate transactions"
		}
	default:
		return fmt.Sprintf("unknown tax type %q", taxType)
	}
	return ""
}
