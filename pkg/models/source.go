package models

import "strings"

// SourceName identifies one of the upstream drug catalogs.
type SourceName string

const (
	SourceRxNorm              SourceName = "rxnorm"
	SourceNCIt                SourceName = "ncit"
	SourceHemOnc              SourceName = "hemonc"
	SourceDrugBank            SourceName = "drugbank"
	SourceDrugsAtFDA          SourceName = "drugsatfda"
	SourceGuideToPharmacology SourceName = "guidetopharmacology"
	SourceChEMBL              SourceName = "chembl"
	SourceChemIDplus          SourceName = "chemidplus"
	SourceWikidata            SourceName = "wikidata"
)

// AllSources is ordered by merge priority, highest first.
var AllSources = []SourceName{
	SourceRxNorm,
	SourceNCIt,
	SourceHemOnc,
	SourceDrugBank,
	SourceDrugsAtFDA,
	SourceGuideToPharmacology,
	SourceChEMBL,
	SourceChemIDplus,
	SourceWikidata,
}

var sourcePriority = func() map[SourceName]int {
	m := make(map[SourceName]int, len(AllSources))
	for i, s := range AllSources {
		m[s] = i + 1
	}
	return m
}()

// Priority returns the merge rank of the source. Lower is better. Unknown
// sources sort after every known one.
func (s SourceName) Priority() int {
	if p, ok := sourcePriority[s]; ok {
		return p
	}
	return len(AllSources) + 1
}

func (s SourceName) Valid() bool {
	_, ok := sourcePriority[s]
	return ok
}

// namespaceToSource maps concept-id namespaces to their owning source.
// Drugs@FDA issues ids under separate application-type namespaces and the
// Guide to Pharmacology uses its IUPHAR ligand namespace.
var namespaceToSource = map[string]SourceName{
	"rxcui":           SourceRxNorm,
	"ncit":            SourceNCIt,
	"hemonc":          SourceHemOnc,
	"drugbank":        SourceDrugBank,
	"drugsatfda.anda": SourceDrugsAtFDA,
	"drugsatfda.nda":  SourceDrugsAtFDA,
	"iuphar.ligand":   SourceGuideToPharmacology,
	"chembl":          SourceChEMBL,
	"chemidplus":      SourceChemIDplus,
	"wikidata":        SourceWikidata,
}

// SourceForConceptID resolves the owning source from a namespaced concept id
// such as "rxcui:2555". The boolean is false when the namespace is unknown
// or the id is not namespaced at all.
func SourceForConceptID(conceptID string) (SourceName, bool) {
	ns, _, ok := strings.Cut(conceptID, ":")
	if !ok {
		return "", false
	}
	src, ok := namespaceToSource[strings.ToLower(ns)]
	return src, ok
}

// SourceMeta describes an upstream catalog release, including the license
// attributes surfaced next to query results.
type SourceMeta struct {
	Source              SourceName `json:"src_name" db:"src_name"`
	DataLicense         string     `json:"data_license" db:"data_license" validate:"required"`
	DataLicenseURL      string     `json:"data_license_url" db:"data_license_url" validate:"required,url"`
	Version             string     `json:"version" db:"version" validate:"required"`
	DataURL             string     `json:"data_url,omitempty" db:"data_url"`
	RdpURL              string     `json:"rdp_url,omitempty" db:"rdp_url"`
	NonCommercial       bool       `json:"non_commercial" db:"non_commercial"`
	ShareAlike          bool       `json:"share_alike" db:"share_alike"`
	AttributionRequired bool       `json:"attribution_required" db:"attribution_required"`
}
