package models

// MatchType reports which tier answered a query. Tiers are evaluated in
// strict descending priority and the first one with results wins.
type MatchType string

const (
	MatchTypeConceptID      MatchType = "concept_id"
	MatchTypeLabel          MatchType = "label"
	MatchTypeTradeName      MatchType = "trade_name"
	MatchTypeAlias          MatchType = "alias"
	MatchTypeXref           MatchType = "xref"
	MatchTypeAssociatedWith MatchType = "associated_with"
	MatchTypeNoMatch        MatchType = "no_match"
)

// Warning codes attached to query responses.
const (
	WarningStrippedQuery     = "stripped_query"
	WarningInferredNamespace = "inferred_namespace"
)

type Warning struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// SourceMatches groups one source's hits for a search query.
type SourceMatches struct {
	MatchType  MatchType   `json:"match_type"`
	Records    []Therapy   `json:"records,omitempty"`
	SourceMeta *SourceMeta `json:"source_meta,omitempty"`
}

// SearchResponse is the per-source (unmerged) query result.
type SearchResponse struct {
	Query     string                       `json:"query"`
	Warnings  []Warning                    `json:"warnings,omitempty"`
	MatchType MatchType                    `json:"match_type"`
	Sources   map[SourceName]SourceMatches `json:"source_matches"`
}

// NormalizeResponse is the merged-group query result.
type NormalizeResponse struct {
	Query      string                    `json:"query"`
	Warnings   []Warning                 `json:"warnings,omitempty"`
	MatchType  MatchType                 `json:"match_type"`
	Record     *MergedRecord             `json:"record,omitempty"`
	SourceMeta map[SourceName]SourceMeta `json:"source_meta,omitempty"`
}
