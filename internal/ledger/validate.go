package ledger

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// Result lists structural problems found in a voucher file
type Result struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems"`
}

var requiredNodes = []string{"ENVELOPE", "HEADER", "BODY", "VOUCHER"}

var requiredFields = []string{"DATE", "VOUCHERTYPENAME", "VOUCHERNUMBER", "PARTYLEDGERNAME", "ALLLEDGERENTRIES.LIST"}

// Validate walks the XML and reports missing required nodes and unbalanced ledger entries.
// It never fails; problems are returned in the report.
func Validate(data []byte) Result {
	if len(bytes.TrimSpace(data)) == 0 {
		return Result{Problems: []string{"XML is empty"}}
	}

	seen := map[string]bool{}
	var (
		stack    []string
		sum      decimal.Decimal
		problems []string
	)

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			problems = append(problems, fmt.Sprintf("Malformed XML: %v", err))
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			seen[t.Name.Local] = true
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			// only direct AMOUNT children of ledger entries take part in the balance
			n := len(stack)
			if n < 2 || stack[n-1] != "AMOUNT" || stack[n-2] != "ALLLEDGERENTRIES.LIST" {
				continue
			}
			text := strings.TrimSpace(string(t))
			amt, err := decimal.NewFromString(text)
			if err != nil {
				problems = append(problems, fmt.Sprintf("Invalid ledger amount: %q", text))
				continue
			}
			sum = sum.Add(amt)
		}
	}

	for _, node := range requiredNodes {
		if !seen[node] {
			problems = append(problems, fmt.Sprintf("Missing %s element", node))
		}
	}
	for _, field := range requiredFields {
		if !seen[field] {
			problems = append(problems, fmt.Sprintf("Missing required field: %s", field))
		}
	}
	if !sum.IsZero() {
		problems = append(problems, fmt.Sprintf("Voucher is not balanced: ledger entries sum to %s", sum.StringFixed(2)))
	}

	return Result{Valid: len(problems) == 0, Problems: problems}
}
