package etl

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/storage"
)

// ReferenceEntry is one reverse-index entry derived from a record
// attribute. The term is stored lowercased by the storage layer.
type ReferenceEntry struct {
	Term string
	Type models.ItemType
}

// Indexer derives and maintains the reverse-index entries for therapy
// records.
type Indexer struct {
	store  storage.Store
	logger ectologger.Logger
}

func NewIndexer(store storage.Store, logger ectologger.Logger) *Indexer {
	return &Indexer{
		store:  store,
		logger: logger,
	}
}

// PrepareRecord normalizes the indexable attributes in place: values are
// trimmed and deduplicated, trade names lose the label, aliases lose the
// label and the trade names, and any capped attribute holding more than
// models.AttributeCap values is dropped outright. Dropping the attribute
// rather than truncating keeps noisy disambiguation entries from flooding
// the index with misleading partial data.
func (ix *Indexer) PrepareRecord(record *models.Therapy) {
	record.Label = strings.TrimSpace(record.Label)

	for _, attr := range models.IndexedAttributes {
		if attr.Scalar {
			continue
		}
		attr.Set(record, dedupe(attr.Get(record)))
	}

	if record.Label != "" {
		record.TradeNames = subtract(record.TradeNames, record.Label)
		record.Aliases = subtract(record.Aliases, record.Label)
	}
	record.Aliases = subtract(record.Aliases, record.TradeNames...)

	for _, attr := range models.IndexedAttributes {
		if attr.Capped && len(attr.Get(record)) > models.AttributeCap {
			attr.Set(record, nil)
		}
	}
}

// ReferenceEntries lists every reverse-index entry a prepared record
// produces, one per attribute value.
func ReferenceEntries(record *models.Therapy) []ReferenceEntry {
	var entries []ReferenceEntry
	for _, attr := range models.IndexedAttributes {
		for _, value := range attr.Get(record) {
			entries = append(entries, ReferenceEntry{Term: value, Type: attr.Type})
		}
	}
	return entries
}

// WriteReferences upserts every reference entry for a prepared record.
func (ix *Indexer) WriteReferences(ctx context.Context, record *models.Therapy) error {
	for _, entry := range ReferenceEntries(record) {
		if err := ix.store.PutReference(ctx, entry.Term, record.ConceptID, entry.Type, record.Source); err != nil {
			return err
		}
	}
	return nil
}

// DeleteReferences removes every reference entry a stored record produced.
func (ix *Indexer) DeleteReferences(ctx context.Context, record *models.Therapy) error {
	for _, entry := range ReferenceEntries(record) {
		if err := ix.store.DeleteReference(ctx, entry.Term, record.ConceptID, entry.Type); err != nil {
			return err
		}
	}
	return nil
}

// dedupe trims values and drops empties and duplicates, preserving first
// occurrence order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// subtract removes the given values from a set, comparing exact stored
// casing.
func subtract(values []string, remove ...string) []string {
	if len(values) == 0 || len(remove) == 0 {
		return values
	}
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[r] = true
	}
	out := values[:0]
	for _, v := range values {
		if !drop[v] {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
