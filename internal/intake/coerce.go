package intake

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/parisxmas/TenderDesk/internal/models"
)

// Outcome names the branch of the lenient decoder that produced a value.
type Outcome int

const (
	OutcomeJSON Outcome = iota
	OutcomeCSV
	OutcomeQuoteRepaired
	OutcomeQuotedExtract
	OutcomeWrappedList
	OutcomeWrappedObject
	OutcomeRaw
)

var outcomeNames = [...]string{
	OutcomeJSON:          "json",
	OutcomeCSV:           "csv",
	OutcomeQuoteRepaired: "quote-repaired",
	OutcomeQuotedExtract: "quoted-extract",
	OutcomeWrappedList:   "wrapped-list",
	OutcomeWrappedObject: "wrapped-object",
	OutcomeRaw:           "raw",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Degraded reports whether the branch is a best-effort guess rather than a
// faithful decoding.
func (o Outcome) Degraded() bool {
	switch o {
	case OutcomeQuotedExtract, OutcomeWrappedList, OutcomeWrappedObject:
		return true
	}
	return false
}

var quotedSubstring = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)

// DecodeLenient runs the fallback chain for a string that should carry
// structure. The order is fixed: strict JSON, comma split, bracketed
// retry/extract/wrap, braced retry/wrap, raw string.
func DecodeLenient(raw string) (any, Outcome) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, OutcomeJSON
	}

	s := strings.TrimSpace(raw)
	bracketed := strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
	braced := strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")

	if strings.Contains(s, ",") && !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return splitCSV(s), OutcomeCSV
	}

	if bracketed {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &v); err == nil {
			return v, OutcomeQuoteRepaired
		}
		matches := quotedSubstring.FindAllStringSubmatch(s, -1)
		if len(matches) > 0 {
			out := make([]string, 0, len(matches))
			for _, m := range matches {
				if m[1] != "" || strings.HasPrefix(m[0], `"`) {
					out = append(out, m[1])
				} else {
					out = append(out, m[2])
				}
			}
			return out, OutcomeQuotedExtract
		}
		return []string{raw}, OutcomeWrappedList
	}

	if braced {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &v); err == nil {
			return v, OutcomeQuoteRepaired
		}
		return map[string]any{"value": raw}, OutcomeWrappedObject
	}

	return raw, OutcomeRaw
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decodeStructured is DecodeLenient plus one extra pass for double-encoded
// JSON, where strict parsing yields a string that is itself JSON.
func decodeStructured(raw string) (any, Outcome) {
	v, outcome := DecodeLenient(raw)
	if inner, ok := v.(string); ok && outcome == OutcomeJSON {
		trimmed := strings.TrimSpace(inner)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") || strings.Contains(trimmed, ",") {
			return DecodeLenient(inner)
		}
	}
	return v, outcome
}

// Coercion is the result of coercing one value to a field kind.
type Coercion struct {
	Value    any
	Absent   bool
	Outcome  Outcome
	Degraded bool
	Detail   string
}

func present(v any, outcome Outcome) Coercion {
	return Coercion{Value: v, Outcome: outcome, Degraded: outcome.Degraded()}
}

func absent() Coercion {
	return Coercion{Absent: true}
}

func degradedAbsent(format string, args ...any) Coercion {
	return Coercion{Absent: true, Degraded: true, Detail: fmt.Sprintf(format, args...)}
}

// Coerce converts a raw transport value (string, []string) or an already
// typed JSON value (from the bulk field) into the Go type for kind:
// string, float64, bool, time.Time, []string, map[string]any or
// []map[string]any.
func Coerce(v any, kind models.FieldKind) Coercion {
	if v == nil {
		return absent()
	}
	if multi, ok := v.([]string); ok {
		switch {
		case len(multi) == 0:
			return absent()
		case len(multi) == 1:
			v = multi[0]
		case kind.Structured():
			return coerceMulti(multi, kind)
		default:
			v = multi[len(multi)-1]
		}
	}

	switch kind {
	case models.KindString:
		return coerceString(v)
	case models.KindNumber:
		return coerceNumber(v)
	case models.KindBoolean:
		return coerceBoolean(v)
	case models.KindDate:
		return coerceDate(v)
	case models.KindStringList:
		return coerceStringList(v)
	case models.KindJSONObject:
		return coerceObject(v)
	case models.KindJSONObjectList:
		return coerceObjectList(v)
	}
	return present(v, OutcomeRaw)
}

func coerceString(v any) Coercion {
	switch t := v.(type) {
	case string:
		return present(t, OutcomeRaw)
	case float64:
		return present(strconv.FormatFloat(t, 'f', -1, 64), OutcomeRaw)
	case bool:
		return present(strconv.FormatBool(t), OutcomeRaw)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return degradedAbsent("cannot render %T as string", t)
		}
		return present(string(b), OutcomeRaw)
	}
}

// ParseNumber parses a numeric string. NaN and infinities count as failures.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coerceNumber(v any) Coercion {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return degradedAbsent("not a finite number")
		}
		return present(t, OutcomeJSON)
	case string:
		if strings.TrimSpace(t) == "" {
			return absent()
		}
		if f, ok := ParseNumber(t); ok {
			return present(f, OutcomeRaw)
		}
		return degradedAbsent("%q is not a number", t)
	default:
		return degradedAbsent("%T is not a number", t)
	}
}

func coerceBoolean(v any) Coercion {
	switch t := v.(type) {
	case bool:
		return present(t, OutcomeJSON)
	case string:
		return present(t == "true" || t == "1", OutcomeRaw)
	default:
		return present(false, OutcomeRaw)
	}
}

var (
	minDateMillis = float64(time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	maxDateMillis = float64(time.Date(9999, 12, 31, 23, 59, 59, 999e6, time.UTC).UnixMilli())
)

// ParseDate accepts the timestamp shapes form clients send: Unix
// milliseconds (10 to 13 digits) and anything dateparse recognizes without
// a day/month ambiguity. Zone-less values are UTC. Results outside years
// 0 to 9999 are rejected.
func ParseDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n := len(s); n >= 10 && n <= 13 && isDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return millisTime(float64(ms))
	}
	defer func() {
		if r := recover(); r != nil {
			t, ok = time.Time{}, false
		}
	}()
	parsed, err := dateparse.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return calendarTime(parsed)
}

func millisTime(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || ms < minDateMillis || ms > maxDateMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

// calendarTime keeps t only when it can be encoded as an RFC3339 timestamp.
func calendarTime(t time.Time) (time.Time, bool) {
	t = t.UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return time.Time{}, false
	}
	return t, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func coerceDate(v any) Coercion {
	switch t := v.(type) {
	case time.Time:
		if d, ok := calendarTime(t); ok {
			return present(d, OutcomeRaw)
		}
		return degradedAbsent("%s is outside years 0 to 9999", t.Format(time.RFC3339))
	case float64:
		if d, ok := millisTime(t); ok {
			return present(d, OutcomeJSON)
		}
		return degradedAbsent("%v is not a valid millisecond timestamp", t)
	case string:
		if strings.TrimSpace(t) == "" {
			return absent()
		}
		if d, ok := ParseDate(t); ok {
			return present(d, OutcomeRaw)
		}
		return degradedAbsent("%q is not a valid date", t)
	default:
		return degradedAbsent("%T is not a date", t)
	}
}

func coerceStringList(v any) Coercion {
	outcome := OutcomeJSON
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return present([]string{}, OutcomeRaw)
		}
		v, outcome = decodeStructured(s)
	}
	c := present(nil, outcome)
	switch t := v.(type) {
	case []string:
		c.Value = t
	case []any:
		out := make([]string, 0, len(t))
		for _, el := range t {
			out = append(out, stringify(el))
		}
		c.Value = out
	case string:
		c.Value = []string{t}
	case map[string]any:
		c.Value = []string{stringify(t)}
		c.Degraded = true
		c.Detail = "object where a list was expected"
	default:
		c.Value = []string{stringify(t)}
	}
	if c.Degraded && c.Detail == "" {
		c.Detail = "list decoded via " + outcome.String() + " fallback"
	}
	return c
}

func coerceObject(v any) Coercion {
	outcome := OutcomeJSON
	raw := ""
	if s, ok := v.(string); ok {
		raw = s
		v, outcome = decodeStructured(s)
	}
	c := present(nil, outcome)
	switch t := v.(type) {
	case map[string]any:
		c.Value = t
	case []any:
		if len(t) == 1 {
			if m, ok := t[0].(map[string]any); ok {
				c.Value = m
				break
			}
		}
		c.Value = map[string]any{"value": t}
		c.Degraded = true
	default:
		if raw != "" {
			c.Value = map[string]any{"value": raw}
		} else {
			c.Value = map[string]any{"value": t}
		}
		c.Degraded = true
	}
	if c.Degraded {
		c.Detail = "object decoded via " + outcome.String() + " fallback"
	}
	return c
}

func coerceObjectList(v any) Coercion {
	outcome := OutcomeJSON
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return present([]map[string]any{}, OutcomeRaw)
		}
		v, outcome = decodeStructured(s)
	}
	c := present(nil, outcome)
	out, clean := toObjects(v)
	c.Value = out
	if !clean {
		c.Degraded = true
	}
	if c.Degraded {
		c.Detail = "object list decoded via " + outcome.String() + " fallback"
	}
	return c
}

// toObjects flattens v into a list of objects, wrapping scalars as
// {"value": x}. clean is false when any wrapping happened.
func toObjects(v any) ([]map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, true
	case []map[string]any:
		return t, true
	case []any:
		out := make([]map[string]any, 0, len(t))
		clean := true
		for _, el := range t {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
				continue
			}
			out = append(out, map[string]any{"value": el})
			clean = false
		}
		return out, clean
	case []string:
		out := make([]map[string]any, 0, len(t))
		for _, el := range t {
			out = append(out, map[string]any{"value": el})
		}
		return out, false
	default:
		return []map[string]any{{"value": t}}, false
	}
}

// coerceMulti handles repeated form keys for structured kinds: every value
// is decoded on its own and the results are merged.
func coerceMulti(values []string, kind models.FieldKind) Coercion {
	switch kind {
	case models.KindJSONObject:
		return coerceObject(values[len(values)-1])
	case models.KindStringList:
		out := make([]string, 0, len(values))
		c := Coercion{}
		for _, raw := range values {
			s := strings.TrimSpace(raw)
			if s == "" {
				continue
			}
			if !strings.HasPrefix(s, "[") {
				out = append(out, s)
				continue
			}
			sub := coerceStringList(s)
			if sub.Degraded {
				c.Degraded, c.Detail = true, sub.Detail
			}
			out = append(out, sub.Value.([]string)...)
		}
		c.Value = out
		return c
	default:
		out := make([]map[string]any, 0, len(values))
		c := Coercion{}
		for _, raw := range values {
			sub := coerceObjectList(raw)
			if sub.Degraded {
				c.Degraded, c.Detail = true, sub.Detail
			}
			out = append(out, sub.Value.([]map[string]any)...)
		}
		c.Value = out
		return c
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
