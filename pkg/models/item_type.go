package models

// ItemType distinguishes the row kinds sharing the concept table. Identity
// and merger rows carry the full record payload; the rest are reference
// entries pointing a lowercased term at a concept id.
type ItemType string

const (
	ItemTypeIdentity       ItemType = "identity"
	ItemTypeLabel          ItemType = "label"
	ItemTypeTradeName      ItemType = "trade_name"
	ItemTypeAlias          ItemType = "alias"
	ItemTypeXref           ItemType = "xref"
	ItemTypeAssociatedWith ItemType = "associated_with"
	ItemTypeMerger         ItemType = "merger"
)

// AttributeCap is the most values an indexed set attribute may carry. A
// source exceeding it for one attribute gets that whole attribute dropped,
// keeping noisy disambiguation pages from flooding the reverse index.
const AttributeCap = 20

// IndexedAttribute describes one record attribute that feeds the reverse
// index. Behavior differences between attributes live here as data so the
// indexer and synchronizer iterate the table exhaustively instead of
// special-casing fields.
type IndexedAttribute struct {
	Type   ItemType
	Field  Field
	Scalar bool
	Capped bool
	Get    func(*Therapy) []string
	Set    func(*Therapy, []string)
}

// IndexedAttributes lists every reference-bearing attribute. Order matters:
// label first so set attributes can be subtracted against it downstream.
var IndexedAttributes = []IndexedAttribute{
	{
		Type:   ItemTypeLabel,
		Field:  FieldLabel,
		Scalar: true,
		Get: func(t *Therapy) []string {
			if t.Label == "" {
				return nil
			}
			return []string{t.Label}
		},
		Set: func(t *Therapy, v []string) {
			if len(v) == 0 {
				t.Label = ""
				return
			}
			t.Label = v[0]
		},
	},
	{
		Type:   ItemTypeAlias,
		Field:  FieldAliases,
		Capped: true,
		Get:    func(t *Therapy) []string { return t.Aliases },
		Set:    func(t *Therapy, v []string) { t.Aliases = v },
	},
	{
		Type:   ItemTypeTradeName,
		Field:  FieldTradeNames,
		Capped: true,
		Get:    func(t *Therapy) []string { return t.TradeNames },
		Set:    func(t *Therapy, v []string) { t.TradeNames = v },
	},
	{
		Type:   ItemTypeXref,
		Field:  FieldXrefs,
		Capped: true,
		Get:    func(t *Therapy) []string { return t.Xrefs },
		Set:    func(t *Therapy, v []string) { t.Xrefs = v },
	},
	{
		Type:   ItemTypeAssociatedWith,
		Field:  FieldAssociatedWith,
		Capped: true,
		Get:    func(t *Therapy) []string { return t.AssociatedWith },
		Set:    func(t *Therapy, v []string) { t.AssociatedWith = v },
	},
}
