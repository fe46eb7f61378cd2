package models

import (
	"encoding/json"
	"time"
)

// NormalizedSubmission is the typed record produced from one multipart
// submission. Values holds recognized fields coerced to their kind and
// unrecognized fields as opaque strings.
type NormalizedSubmission struct {
	Values map[string]any
}

func NewNormalizedSubmission() *NormalizedSubmission {
	return &NormalizedSubmission{Values: make(map[string]any)}
}

func (s *NormalizedSubmission) MarshalJSON() ([]byte, error) {
	if s == nil || s.Values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.Values)
}

func (s *NormalizedSubmission) Has(name string) bool {
	_, ok := s.Values[name]
	return ok
}

func (s *NormalizedSubmission) String(name string) string {
	v, _ := s.Values[name].(string)
	return v
}

func (s *NormalizedSubmission) Number(name string) (float64, bool) {
	v, ok := s.Values[name].(float64)
	return v, ok
}

func (s *NormalizedSubmission) Bool(name string) bool {
	v, _ := s.Values[name].(bool)
	return v
}

func (s *NormalizedSubmission) Time(name string) (time.Time, bool) {
	v, ok := s.Values[name].(time.Time)
	return v, ok
}

func (s *NormalizedSubmission) Strings(name string) []string {
	v, _ := s.Values[name].([]string)
	return v
}

func (s *NormalizedSubmission) Object(name string) map[string]any {
	v, _ := s.Values[name].(map[string]any)
	return v
}

func (s *NormalizedSubmission) Objects(name string) []map[string]any {
	v, _ := s.Values[name].([]map[string]any)
	return v
}

// Budget is the typed view of a budget-shaped nested object.
type Budget struct {
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Currency string   `json:"currency"`
}

// Budget returns the named nested object as a Budget.
func (s *NormalizedSubmission) Budget(name string) (Budget, bool) {
	obj := s.Object(name)
	if obj == nil {
		return Budget{}, false
	}
	var b Budget
	if v, ok := obj["min"].(float64); ok {
		b.Min = &v
	}
	if v, ok := obj["max"].(float64); ok {
		b.Max = &v
	}
	b.Currency, _ = obj["currency"].(string)
	return b, true
}
