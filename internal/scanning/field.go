package scanning

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Confidence scores for the levels the model tags fields with
const (
	scoreHigh   = 0.95
	scoreMedium = 0.75
	scoreLow    = 0.50
)

// Field is a value that the model either returns bare ("Ravi") or wrapped with a
// confidence tag ({"value": "Ravi", "confidence": "high"}).
type Field struct {
	raw     json.RawMessage
	level   string
	scored  bool
	present bool
}

func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = Field{}
		return nil
	}

	if data[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		if value, ok := wrapped["value"]; ok {
			level := wrapped["confidence"]
			if level == nil {
				level = wrapped["confidenceLevel"]
			}
			var lv string
			_ = json.Unmarshal(level, &lv)

			*f = Field{
				raw:     value,
				level:   strings.ToLower(strings.TrimSpace(lv)),
				scored:  true,
				present: !bytes.Equal(bytes.TrimSpace(value), []byte("null")),
			}
			return nil
		}
	}

	*f = Field{raw: append(json.RawMessage(nil), data...), present: true}
	return nil
}

// Present reports whether the field was given a non-null value
func (f Field) Present() bool {
	return f.present
}

// Truthy reports whether the field holds something other than null, false or an empty string
func (f Field) Truthy() bool {
	if !f.present {
		return false
	}
	switch string(bytes.TrimSpace(f.raw)) {
	case "false", `""`, "0":
		return false
	}
	return true
}

// String unwraps the field as text. Numbers are returned in their JSON form.
func (f Field) String() string {
	if !f.present {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(f.raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Number unwraps the field as a number. Strings such as "1,200" or "₹ 450.50" are
// parsed; anything unparsable yields 0.
func (f Field) Number() float64 {
	if !f.present {
		return 0
	}
	var n float64
	if err := json.Unmarshal(f.raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(f.raw, &s); err != nil {
		return 0
	}
	return parseNumber(s)
}

// Score maps the confidence tag to a numeric score. Bare values carry no doubt and score high.
func (f Field) Score() float64 {
	if !f.scored {
		return scoreHigh
	}
	switch f.level {
	case "high":
		return scoreHigh
	case "low":
		return scoreLow
	default:
		return scoreMedium
	}
}

func parseNumber(s string) float64 {
	s = strings.NewReplacer(",", "", "₹", "", "Rs.", "", "Rs", "", " ", "").Replace(strings.TrimSpace(s))
	// keep the leading numeric prefix so "500/pc" reads as 500
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && c == '-') {
			end++
			continue
		}
		break
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return n
}
