package gst

// TaxCode is the HSN classification and GST rate applied to a product
type TaxCode struct {
	HSN     string  `json:"hsn"`
	Rate    float64 `json:"rate"`
	Matched bool    `json:"matched"`
}

type hsnEntry struct {
	name string
	hsn  string
	rate float64
}

// DefaultTaxCode is used when a product name matches nothing in the table
var DefaultTaxCode = TaxCode{HSN: "99999999", Rate: 18}

// hsnTable holds the products commonly billed by small manufacturers. Order matters for
// partial matches: the first entry whose name overlaps the product wins.
var hsnTable = []hsnEntry{
	// furniture
	{"plastic chairs", "94036090", 18},
	{"kursi", "94036090", 18},
	{"chair", "94036090", 18},
	{"table", "94033090", 18},
	{"furniture", "94036090", 18},

	// metals
	{"steel pipes", "73063090", 18},
	{"sariya", "72142000", 18},
	{"steel bars", "72142000", 18},
	{"iron rod", "72142000", 18},
	{"metal pipe", "73063090", 18},

	// textiles
	{"cotton fabric", "52083900", 5},
	{"kapda", "52083900", 5},
	{"cloth", "52083900", 5},
	{"textile", "52083900", 5},

	// electrical
	{"led bulbs", "85395000", 18},
	{"bulb", "85395000", 18},
	{"light", "85395000", 18},
	{"led", "85395000", 18},
}
