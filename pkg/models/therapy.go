package models

import "strings"

// ApprovalStatus is the regulatory standing reported by a source.
type ApprovalStatus string

const (
	ApprovalStatusApproved        ApprovalStatus = "approved"
	ApprovalStatusInvestigational ApprovalStatus = "investigational"
	ApprovalStatusWithdrawn       ApprovalStatus = "withdrawn"
)

// Indication ties a therapy to a disease it treats. NormalizedDiseaseID is
// filled by the disease normalizer when resolution succeeds and left empty
// otherwise.
type Indication struct {
	DiseaseID           string `json:"disease_id" validate:"required"`
	DiseaseLabel        string `json:"disease_label" validate:"required"`
	NormalizedDiseaseID string `json:"normalized_disease_id,omitempty"`
}

// Therapy is one source's record for a single drug concept. Concept id
// casing is source-authoritative; lookup keys derived from it are lowercased
// at the storage layer but the stored value keeps the original casing.
type Therapy struct {
	ConceptID      string         `json:"concept_id" db:"concept_id" validate:"required,contains=:"`
	Label          string         `json:"label,omitempty"`
	Aliases        []string       `json:"aliases,omitempty"`
	TradeNames     []string       `json:"trade_names,omitempty"`
	Xrefs          []string       `json:"xrefs,omitempty"`
	AssociatedWith []string       `json:"associated_with,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approval_status,omitempty" validate:"omitempty,oneof=approved investigational withdrawn"`
	ApprovalYear   []int          `json:"approval_year,omitempty"`
	HasIndication  []Indication   `json:"has_indication,omitempty" validate:"omitempty,dive"`
	Source         SourceName     `json:"src_name" validate:"required"`

	// MergeRef points at the merged record covering this concept's group.
	// Set only after a merge pass; cleared when xrefs change.
	MergeRef string `json:"merge_ref,omitempty"`

	// Fingerprint is a content hash used to short-circuit no-op syncs.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Clone returns a deep copy. Sync diffs mutate the incoming record while
// the stored one stays untouched.
func (t *Therapy) Clone() *Therapy {
	out := *t
	out.Aliases = append([]string(nil), t.Aliases...)
	out.TradeNames = append([]string(nil), t.TradeNames...)
	out.Xrefs = append([]string(nil), t.Xrefs...)
	out.AssociatedWith = append([]string(nil), t.AssociatedWith...)
	out.ApprovalYear = append([]int(nil), t.ApprovalYear...)
	out.HasIndication = append([]Indication(nil), t.HasIndication...)
	return &out
}

// MergedRecord is the canonical view of a concept group. ConceptID is the
// pipe-joined concatenation of member ids in source priority order; scalar
// fields come from the highest-priority member defining them and set fields
// are unions across members.
type MergedRecord struct {
	ConceptID      string         `json:"concept_id" db:"concept_id"`
	Label          string         `json:"label,omitempty"`
	Aliases        []string       `json:"aliases,omitempty"`
	TradeNames     []string       `json:"trade_names,omitempty"`
	Xrefs          []string       `json:"xrefs,omitempty"`
	AssociatedWith []string       `json:"associated_with,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approval_status,omitempty"`
	ApprovalYear   []int          `json:"approval_year,omitempty"`
	HasIndication  []Indication   `json:"has_indication,omitempty"`
}

// MemberIDs splits the composite concept id back into its members.
func (m *MergedRecord) MemberIDs() []string {
	if m.ConceptID == "" {
		return nil
	}
	return strings.Split(m.ConceptID, "|")
}
