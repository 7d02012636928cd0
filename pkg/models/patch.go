package models

// Field names a top-level attribute of a stored therapy record. Values
// double as the JSON keys inside the record payload.
type Field string

const (
	FieldLabel          Field = "label"
	FieldAliases        Field = "aliases"
	FieldTradeNames     Field = "trade_names"
	FieldXrefs          Field = "xrefs"
	FieldAssociatedWith Field = "associated_with"
	FieldApprovalStatus Field = "approval_status"
	FieldApprovalYear   Field = "approval_year"
	FieldHasIndication  Field = "has_indication"
	FieldMergeRef       Field = "merge_ref"
	FieldFingerprint    Field = "fingerprint"
)

// RecordPatch is an explicit field-level update applied atomically to one
// stored record. Sets replace a field's value; Removes delete the field
// outright. A field never appears in both.
type RecordPatch struct {
	Sets    map[Field]any `json:"sets,omitempty"`
	Removes []Field       `json:"removes,omitempty"`
}

func NewRecordPatch() *RecordPatch {
	return &RecordPatch{Sets: map[Field]any{}}
}

func (p *RecordPatch) Set(f Field, v any) *RecordPatch {
	p.Sets[f] = v
	return p
}

func (p *RecordPatch) Remove(f Field) *RecordPatch {
	p.Removes = append(p.Removes, f)
	return p
}

func (p *RecordPatch) Empty() bool {
	return len(p.Sets) == 0 && len(p.Removes) == 0
}
