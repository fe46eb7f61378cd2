package intake

import "github.com/parisxmas/TenderDesk/internal/models"

// Wire names of fields the pipeline treats specially.
const (
	FieldBulk         = "tenderData"
	FieldDescriptions = "fileDescriptions"
	FieldTypes        = "fileTypes"
	FieldKeys         = "fileKeys"
	FieldMeta         = "fileMeta"
	FieldBudget       = "budget"
	FieldBidSecurity  = "bidSecurity"
	FieldTitle        = "title"
	FieldReference    = "referenceNumber"
	FieldCategory     = "category"
	FieldDeadline     = "submissionDeadline"
)

// TenderSchema is the fixed set of recognized tender fields.
var TenderSchema = []models.FieldSpec{
	{Name: FieldTitle, Kind: models.KindString},
	{Name: "description", Kind: models.KindString},
	{Name: FieldReference, Kind: models.KindString},
	{Name: FieldCategory, Kind: models.KindString},
	{Name: "subcategory", Kind: models.KindString},
	{Name: "procurementMethod", Kind: models.KindString},
	{Name: "tenderType", Kind: models.KindString},
	{Name: "status", Kind: models.KindString},
	{Name: "visibility", Kind: models.KindString},
	{Name: "location", Kind: models.KindString},
	{Name: "region", Kind: models.KindString},
	{Name: "organizationId", Kind: models.KindString},
	{Name: "language", Kind: models.KindString},

	{Name: "estimatedValue", Kind: models.KindNumber},
	{Name: "validityPeriodDays", Kind: models.KindNumber},
	{Name: "lotCount", Kind: models.KindNumber},
	{Name: "maxBidders", Kind: models.KindNumber},

	{Name: "isPublic", Kind: models.KindBoolean},
	{Name: "isUrgent", Kind: models.KindBoolean},
	{Name: "allowPartialBids", Kind: models.KindBoolean},
	{Name: "allowForeignBidders", Kind: models.KindBoolean},
	{Name: "requiresSiteVisit", Kind: models.KindBoolean},
	{Name: "requiresBidSecurity", Kind: models.KindBoolean},

	{Name: FieldDeadline, Kind: models.KindDate},
	{Name: "openingDate", Kind: models.KindDate},
	{Name: "publishedAt", Kind: models.KindDate},
	{Name: "clarificationDeadline", Kind: models.KindDate},
	{Name: "siteVisitDate", Kind: models.KindDate},

	{Name: "tags", Kind: models.KindStringList},
	{Name: "eligibilityCriteria", Kind: models.KindStringList},
	{Name: "requiredDocuments", Kind: models.KindStringList},
	{Name: "invitedBidders", Kind: models.KindStringList},
	{Name: FieldDescriptions, Kind: models.KindStringList},
	{Name: FieldTypes, Kind: models.KindStringList},
	{Name: FieldKeys, Kind: models.KindStringList},

	{Name: FieldBudget, Kind: models.KindJSONObject},
	{Name: FieldBidSecurity, Kind: models.KindJSONObject},
	{Name: "contactPerson", Kind: models.KindJSONObject},
	{Name: "deliveryAddress", Kind: models.KindJSONObject},

	{Name: "lots", Kind: models.KindJSONObjectList},
	{Name: "evaluationCriteria", Kind: models.KindJSONObjectList},
	{Name: "milestones", Kind: models.KindJSONObjectList},
	{Name: FieldMeta, Kind: models.KindJSONObjectList},
}

// MoneySpec names the numeric leaves of a nested money object. Every money
// object also gets a currency leaf.
type MoneySpec struct {
	Field       string
	NumericKeys []string
}

// TenderMoneyFields get the nested numeric pass after structural coercion.
var TenderMoneyFields = []MoneySpec{
	{Field: FieldBudget, NumericKeys: []string{"min", "max"}},
	{Field: FieldBidSecurity, NumericKeys: []string{"amount", "percentage"}},
}

// Schema is an indexed FieldSpec table.
type Schema struct {
	specs  []models.FieldSpec
	byName map[string]models.FieldSpec
	money  []MoneySpec
}

// NewSchema indexes specs. A duplicate name panics: the table is static and
// each name must have exactly one kind.
func NewSchema(specs []models.FieldSpec, money []MoneySpec) *Schema {
	s := &Schema{specs: specs, byName: make(map[string]models.FieldSpec, len(specs)), money: money}
	for _, spec := range specs {
		if _, dup := s.byName[spec.Name]; dup {
			panic("intake: duplicate field spec " + spec.Name)
		}
		s.byName[spec.Name] = spec
	}
	return s
}

func (s *Schema) Lookup(name string) (models.FieldSpec, bool) {
	spec, ok := s.byName[name]
	return spec, ok
}

func (s *Schema) Specs() []models.FieldSpec {
	return s.specs
}

var defaultSchema = NewSchema(TenderSchema, TenderMoneyFields)

// DefaultSchema returns the tender schema.
func DefaultSchema() *Schema {
	return defaultSchema
}
