package storage

import (
	"context"
	"strings"

	"github.com/yarrow-bio/yarrow/pkg/models"
)

// KeySeparator joins the lowercased term and item type into the partition
// key shared by identity, reference, and merger rows.
const KeySeparator = "##"

// LabelAndType builds the partition key for a term under an item type.
func LabelAndType(term string, itemType models.ItemType) string {
	return strings.ToLower(term) + KeySeparator + string(itemType)
}

// Store is the key-value contract every backend implements. All lookups by
// term are exact after lowercasing; stored values keep original casing.
type Store interface {
	// GetIdentity fetches one source record by concept id. Case-sensitive
	// lookups additionally require the stored id to match byte for byte.
	// Returns ErrNotFound when absent.
	GetIdentity(ctx context.Context, conceptID string, caseSensitive bool) (*models.Therapy, error)

	// GetByTerm returns the concept ids referencing term under itemType,
	// in deterministic order. An unknown term yields an empty slice.
	GetByTerm(ctx context.Context, term string, itemType models.ItemType) ([]string, error)

	// PutIdentity upserts a full source record.
	PutIdentity(ctx context.Context, record *models.Therapy) error

	// PutReference upserts one reverse-index entry. Idempotent.
	PutReference(ctx context.Context, term, conceptID string, itemType models.ItemType, source models.SourceName) error

	DeleteReference(ctx context.Context, term, conceptID string, itemType models.ItemType) error
	DeleteIdentity(ctx context.Context, conceptID string) error

	// UpdateFields applies a typed patch to one stored record. Returns
	// ErrNotFound when the record does not exist.
	UpdateFields(ctx context.Context, conceptID string, patch *models.RecordPatch) error

	// ScanSource pages through the concept ids loaded from one source.
	// Pass the returned cursor back in to resume; an empty cursor starts
	// over, an empty returned cursor means the scan is done.
	ScanSource(ctx context.Context, source models.SourceName, cursor string, limit int) ([]string, string, error)

	// GetMerged fetches a merged group record by its exact composite
	// concept id, the value members carry in merge_ref.
	GetMerged(ctx context.Context, conceptID string) (*models.MergedRecord, error)
	PutMerged(ctx context.Context, record *models.MergedRecord) error

	// DeleteMergedRecords drops every merged record and clears all
	// merge_ref pointers. Run before a full merge pass.
	DeleteMergedRecords(ctx context.Context) error

	GetSourceMeta(ctx context.Context, source models.SourceName) (*models.SourceMeta, error)
	PutSourceMeta(ctx context.Context, meta *models.SourceMeta) error
	ListSourceMeta(ctx context.Context) ([]models.SourceMeta, error)
}
