package models

// FieldKind is the semantic type a form field is coerced to.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindBoolean
	KindDate
	KindStringList
	KindJSONObject
	KindJSONObjectList
)

var fieldKindNames = [...]string{
	KindString:         "string",
	KindNumber:         "number",
	KindBoolean:        "boolean",
	KindDate:           "date",
	KindStringList:     "stringList",
	KindJSONObject:     "jsonObject",
	KindJSONObjectList: "jsonObjectList",
}

func (k FieldKind) String() string {
	if k < 0 || int(k) >= len(fieldKindNames) {
		return "unknown"
	}
	return fieldKindNames[k]
}

// Structured reports whether values of this kind go through the lenient
// JSON decision tree instead of a scalar parse.
func (k FieldKind) Structured() bool {
	return k == KindStringList || k == KindJSONObject || k == KindJSONObjectList
}

// FieldSpec declares one recognized wire field.
type FieldSpec struct {
	Name string
	Kind FieldKind
}
