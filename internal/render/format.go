package render

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatINR formats an amount with two decimals and Indian digit grouping: 1,23,456.00
func FormatINR(amount float64) string {
	s := decimal.NewFromFloat(amount).StringFixed(2)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	if len(intPart) > 3 {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		intPart = strings.Join(groups, ",") + "," + tail
	}
	return sign + intPart + "." + frac
}

// FormatQuantity drops trailing zeros: 100 stays "100", 42.380 becomes "42.38"
func FormatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
