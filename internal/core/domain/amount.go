package domain

import (
	"database/sql/driver"
	"encoding/json"
	"strconv"
	"strings"
)

// Amount is an optional monetary value tolerant of the formats upstream
// parsers emit: JSON numbers, "1234.5", "$1,234.50", "", or null.
// Unparseable input yields the zero Amount, never an error.
type Amount struct {
	value float64
	valid bool
}

func NewAmount(v float64) Amount {
	return Amount{value: v, valid: true}
}

func ParseAmount(s string) Amount {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Amount{}
	}
	return Amount{value: f, valid: true}
}

func (a Amount) Float() (float64, bool) {
	return a.value, a.valid
}

func (a Amount) Valid() bool {
	return a.valid
}

// Positive reports whether the amount is present and strictly positive.
func (a Amount) Positive() bool {
	return a.valid && a.value > 0
}

func (a Amount) Or(fallback float64) float64 {
	if a.valid {
		return a.value
	}
	return fallback
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*a = Amount{value: n, valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = ParseAmount(s)
		return nil
	}
	*a = Amount{}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.value)
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
	case float64:
		*a = Amount{value: v, valid: true}
	case int64:
		*a = Amount{value: float64(v), valid: true}
	case []byte:
		*a = ParseAmount(string(v))
	case string:
		*a = ParseAmount(v)
	default:
		*a = Amount{}
	}
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	if !a.valid {
		return nil, nil
	}
	return a.value, nil
}
