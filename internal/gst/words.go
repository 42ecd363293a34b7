package gst

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ones = []string{"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
		"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen", "Seventeen", "Eighteen", "Nineteen"}
	tens = []string{"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety"}
)

// AmountToWords spells an amount the way Indian invoices do, grouping by crore, lakh,
// thousand and hundred: 159000.50 is "One Lakh Fifty Nine Thousand Rupees and Fifty Paise Only".
func AmountToWords(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)

	var prefix string
	if d.IsNegative() {
		prefix = "Minus "
		d = d.Neg()
	}

	rupees := d.IntPart()
	paise := d.Sub(decimal.NewFromInt(rupees)).Mul(decimal.NewFromInt(100)).IntPart()

	switch {
	case rupees == 0 && paise == 0:
		return "Zero Rupees Only"
	case rupees == 0:
		return prefix + spell(paise) + " Paise Only"
	case paise == 0:
		return prefix + spell(rupees) + " Rupees Only"
	}
	return prefix + spell(rupees) + " Rupees and " + spell(paise) + " Paise Only"
}

// spell writes a positive integer in words using the Indian grouping
func spell(n int64) string {
	var parts []string

	if n >= 10000000 {
		parts = append(parts, spell(n/10000000), "Crore")
		n %= 10000000
	}
	if n >= 100000 {
		parts = append(parts, belowHundred(n/100000), "Lakh")
		n %= 100000
	}
	if n >= 1000 {
		parts = append(parts, belowHundred(n/1000), "Thousand")
		n %= 1000
	}
	if n >= 100 {
		parts = append(parts, ones[n/100], "Hundred")
		n %= 100
	}
	if n > 0 {
		parts = append(parts, belowHundred(n))
	}
	return strings.Join(parts, " ")
}

func belowHundred(n int64) string {
	if n < 20 {
		return ones[n]
	}
	if n%10 == 0 {
		return tens[n/10]
	}
	return tens[n/10] + " " + ones[n%10]
}
