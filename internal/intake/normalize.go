package intake

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/parisxmas/TenderDesk/internal/models"
)

// Normalizer builds a NormalizedSubmission from the text fields of a request.
type Normalizer struct {
	schema   *Schema
	currency string
	logger   *slog.Logger
}

func NewNormalizer(schema *Schema, defaultCurrency string, logger *slog.Logger) *Normalizer {
	if schema == nil {
		schema = DefaultSchema()
	}
	if strings.TrimSpace(defaultCurrency) == "" {
		defaultCurrency = DefaultCurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{schema: schema, currency: strings.ToUpper(defaultCurrency), logger: logger}
}

// Normalize never fails. Values that could only be guessed at are kept in
// their best-effort form and reported as warnings.
func (n *Normalizer) Normalize(raw map[string][]string) (*models.NormalizedSubmission, []Warning) {
	fields := canonicalFields(raw)
	out := models.NewNormalizedSubmission()
	var warnings []Warning
	warn := func(w Warning) {
		n.logger.Warn("coercion degraded", "field", w.Field, "detail", w.Message)
		warnings = append(warnings, w)
	}

	if values, ok := fields[FieldBulk]; ok && len(values) > 0 {
		bulk, w := decodeBulk(values[len(values)-1])
		if w != nil {
			warn(*w)
		}
		for name, v := range bulk {
			spec, known := n.schema.Lookup(name)
			if !known {
				out.Values[name] = v
				continue
			}
			n.apply(out, spec, v, warn)
		}
	}

	for _, spec := range n.schema.Specs() {
		values, ok := fields[spec.Name]
		if !ok {
			continue
		}
		delete(out.Values, spec.Name)
		n.apply(out, spec, values, warn)
	}

	for name, values := range fields {
		if name == FieldBulk {
			continue
		}
		if _, known := n.schema.Lookup(name); known {
			continue
		}
		if len(values) == 1 {
			out.Values[name] = values[0]
		} else {
			out.Values[name] = values
		}
	}

	for _, money := range n.schema.money {
		n.normalizeMoney(out, money, warn)
	}

	for _, spec := range n.schema.Specs() {
		if spec.Kind != models.KindDate {
			continue
		}
		v, ok := out.Values[spec.Name]
		if !ok {
			continue
		}
		c := Coerce(v, models.KindDate)
		if c.Degraded {
			warn(fieldWarning(spec.Name, "%s", c.Detail))
		}
		if c.Absent {
			delete(out.Values, spec.Name)
			continue
		}
		out.Values[spec.Name] = c.Value
	}

	return out, warnings
}

// apply coerces v into spec's kind and stores it. Dates are stored raw and
// converted in the final pass.
func (n *Normalizer) apply(out *models.NormalizedSubmission, spec models.FieldSpec, v any, warn func(Warning)) {
	if spec.Kind == models.KindDate {
		out.Values[spec.Name] = v
		return
	}
	c := Coerce(v, spec.Kind)
	if c.Degraded {
		warn(fieldWarning(spec.Name, "%s", c.Detail))
	}
	if c.Absent {
		delete(out.Values, spec.Name)
		return
	}
	out.Values[spec.Name] = c.Value
}

func (n *Normalizer) normalizeMoney(out *models.NormalizedSubmission, spec MoneySpec, warn func(Warning)) {
	obj, ok := out.Values[spec.Field].(map[string]any)
	if !ok {
		return
	}
	for _, key := range spec.NumericKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		c := Coerce(v, models.KindNumber)
		if c.Absent {
			if c.Degraded {
				warn(fieldWarning(spec.Field+"."+key, "%s", c.Detail))
			}
			delete(obj, key)
			continue
		}
		obj[key] = c.Value
	}
	currency := strings.ToUpper(strings.TrimSpace(stringify(obj["currency"])))
	if currency == "" {
		currency = n.currency
	}
	obj["currency"] = currency
}

// canonicalFields strips a trailing "[]" from field names and merges the
// values of "x" and "x[]", in that order.
func canonicalFields(raw map[string][]string) map[string][]string {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string][]string, len(raw))
	for _, name := range names {
		canonical := strings.TrimSuffix(name, "[]")
		out[canonical] = append(out[canonical], raw[name]...)
	}
	return out
}

// decodeBulk parses the bulk JSON field. Malformed input is repaired when
// possible; anything that is not an object is dropped.
func decodeBulk(raw string) (map[string]any, *Warning) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil || json.Unmarshal([]byte(repaired), &v) != nil {
			w := fieldWarning(FieldBulk, "bulk field is not valid JSON and could not be repaired; ignored")
			return nil, &w
		}
		obj, ok := v.(map[string]any)
		if !ok {
			w := fieldWarning(FieldBulk, "repaired bulk field is not an object; ignored")
			return nil, &w
		}
		w := fieldWarning(FieldBulk, "bulk field was malformed JSON and was repaired")
		return obj, &w
	}
	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			w := fieldWarning(FieldBulk, "double-encoded bulk field is not valid JSON; ignored")
			return nil, &w
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		w := fieldWarning(FieldBulk, "bulk field is not a JSON object; ignored")
		return nil, &w
	}
	return obj, nil
}
