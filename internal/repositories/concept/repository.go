package concept

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/yarrow-bio/yarrow/pkg/database"
	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/storage"
	"github.com/yarrow-bio/yarrow/pkg/tracing"
)

const tableName = "therapy_concepts"

// Repository persists identity, reference, and merger rows in the shared
// concept table. All three kinds live under the same composite key of
// (label_and_type, concept_id) so term lookups are single partition reads.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for health checks.
func (r *Repository) DB() database.DB {
	return r.db
}

// GetIdentity fetches one source record. The partition key is derived from
// the lowercased id, so the default lookup is case-insensitive; the
// case-sensitive variant also matches the stored id byte for byte.
func (r *Repository) GetIdentity(ctx context.Context, conceptID string, caseSensitive bool) (*models.Therapy, error) {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.GetIdentity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("record")
	sb.From(tableName)
	sb.Where(sb.Equal("label_and_type", storage.LabelAndType(conceptID, models.ItemTypeIdentity)))
	if caseSensitive {
		sb.Where(sb.Equal("concept_id", conceptID))
	}

	query, args := sb.Build()
	var row database.JSONB[models.Therapy]
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, storage.ErrNotFound
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get identity record")
		return nil, storage.NewStorageError("get identity", err)
	}

	record := row.GetValue()
	return &record, nil
}

// GetByTerm returns the concept ids referencing term under itemType,
// ordered by id for deterministic results.
func (r *Repository) GetByTerm(ctx context.Context, term string, itemType models.ItemType) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.GetByTerm")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("concept_id")
	sb.From(tableName)
	sb.Where(sb.Equal("label_and_type", storage.LabelAndType(term, itemType)))
	sb.OrderBy("concept_id ASC")

	query, args := sb.Build()
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get references by term")
		return nil, storage.NewStorageError("get by term", err)
	}

	return ids, nil
}

// PutIdentity upserts a full source record.
func (r *Repository) PutIdentity(ctx context.Context, record *models.Therapy) error {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.PutIdentity")
	defer span.End()

	payload, err := json.Marshal(record)
	if err != nil {
		return storage.NewStorageError("marshal identity", err)
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("label_and_type", "concept_id", "item_type", "src_name", "record", "updated_at")
	sb.Values(
		storage.LabelAndType(record.ConceptID, models.ItemTypeIdentity),
		record.ConceptID,
		models.ItemTypeIdentity,
		record.Source,
		payload,
		time.Now().UTC(),
	)

	query, args := sb.Build()
	query += " ON CONFLICT (label_and_type, concept_id) DO UPDATE SET record = EXCLUDED.record, src_name = EXCLUDED.src_name, updated_at = EXCLUDED.updated_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"concept_id": record.ConceptID}).Error("Failed to put identity record")
		return storage.NewStorageError("put identity", err)
	}

	return nil
}

// PutReference upserts one reverse-index entry. Idempotent.
func (r *Repository) PutReference(ctx context.Context, term, conceptID string, itemType models.ItemType, source models.SourceName) error {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.PutReference")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("label_and_type", "concept_id", "item_type", "src_name", "updated_at")
	sb.Values(storage.LabelAndType(term, itemType), conceptID, itemType, source, time.Now().UTC())

	query, args := sb.Build()
	query += " ON CONFLICT (label_and_type, concept_id) DO NOTHING"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"term": term, "item_type": itemType}).Error("Failed to put reference entry")
		return storage.NewStorageError("put reference", err)
	}

	return nil
}

func (r *Repository) DeleteReference(ctx context.Context, term, conceptID string, itemType models.ItemType) error {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.DeleteReference")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(
		sb.Equal("label_and_type", storage.LabelAndType(term, itemType)),
		sb.Equal("concept_id", conceptID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete reference entry")
		return storage.NewStorageError("delete reference", err)
	}

	return nil
}

func (r *Repository) DeleteIdentity(ctx context.Context, conceptID string) error {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.DeleteIdentity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(sb.Equal("label_and_type", storage.LabelAndType(conceptID, models.ItemTypeIdentity)))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"concept_id": conceptID}).Error("Failed to delete identity record")
		return storage.NewStorageError("delete identity", err)
	}

	return nil
}

// UpdateFields applies a typed patch to one stored record in place. Set
// fields are merged into the JSONB payload and removed fields dropped in a
// single statement so the record never holds a partial patch.
func (r *Repository) UpdateFields(ctx context.Context, conceptID string, patch *models.RecordPatch) error {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.UpdateFields")
	defer span.End()

	if patch == nil || patch.Empty() {
		return nil
	}

	sets, err := json.Marshal(patch.Sets)
	if err != nil {
		return storage.NewStorageError("marshal patch", err)
	}
	removes := make([]string, 0, len(patch.Removes))
	for _, f := range patch.Removes {
		removes = append(removes, string(f))
	}

	query := `
		UPDATE therapy_concepts
		SET record = (record - $1::text[]) || $2::jsonb,
		    updated_at = $3
		WHERE label_and_type = $4
	`
	result, err := r.db.ExecContext(ctx, query, pq.Array(removes), sets, time.Now().UTC(), storage.LabelAndType(conceptID, models.ItemTypeIdentity))
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"concept_id": conceptID}).Error("Failed to update record fields")
		return storage.NewStorageError("update fields", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ScanSource pages through a source's concept ids using a keyset cursor so
// a retirement sweep can resume after interruption.
func (r *Repository) ScanSource(ctx context.Context, source models.SourceName, cursor string, limit int) ([]string, string, error) {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.ScanSource")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("concept_id")
	sb.From(tableName)
	sb.Where(
		sb.Equal("src_name", source),
		sb.Equal("item_type", models.ItemTypeIdentity),
	)
	if cursor != "" {
		sb.Where(sb.GreaterThan("concept_id", cursor))
	}
	sb.OrderBy("concept_id ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"src_name": source}).Error("Failed to scan source")
		return nil, "", storage.NewStorageError("scan source", err)
	}

	next := ""
	if limit > 0 && len(ids) == limit {
		next = ids[len(ids)-1]
	}
	return ids, next, nil
}

// GetMerged fetches a merged group record by its composite concept id.
func (r *Repository) GetMerged(ctx context.Context, conceptID string) (*models.MergedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.GetMerged")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("record")
	sb.From(tableName)
	sb.Where(sb.Equal("label_and_type", storage.LabelAndType(conceptID, models.ItemTypeMerger)))

	query, args := sb.Build()
	var row database.JSONB[models.MergedRecord]
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, storage.ErrNotFound
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merged record")
		return nil, storage.NewStorageError("get merged", err)
	}

	record := row.GetValue()
	return &record, nil
}

// PutMerged upserts a merged group record. Merger rows carry no src_name.
func (r *Repository) PutMerged(ctx context.Context, record *models.MergedRecord) error {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.PutMerged")
	defer span.End()

	payload, err := json.Marshal(record)
	if err != nil {
		return storage.NewStorageError("marshal merged", err)
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("label_and_type", "concept_id", "item_type", "src_name", "record", "updated_at")
	sb.Values(
		storage.LabelAndType(record.ConceptID, models.ItemTypeMerger),
		record.ConceptID,
		models.ItemTypeMerger,
		"",
		payload,
		time.Now().UTC(),
	)

	query, args := sb.Build()
	query += " ON CONFLICT (label_and_type, concept_id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"concept_id": record.ConceptID}).Error("Failed to put merged record")
		return storage.NewStorageError("put merged", err)
	}

	return nil
}

// DeleteMergedRecords drops every merger row and clears all merge_ref
// pointers ahead of a full merge pass. Both statements run in one
// transaction so a query never sees cleared merger rows with pointers
// still attached.
func (r *Repository) DeleteMergedRecords(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "concept.Repository.DeleteMergedRecords")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to start merge reset transaction")
		return storage.NewStorageError("begin merge reset", err)
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(sb.Equal("item_type", models.ItemTypeMerger))

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete merged records")
		return storage.NewStorageError("delete merged records", err)
	}

	clearQuery := `
		UPDATE therapy_concepts
		SET record = record - 'merge_ref'
		WHERE item_type = $1 AND record ? 'merge_ref'
	`
	if _, err := tx.ExecContext(ctx, clearQuery, models.ItemTypeIdentity); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear merge refs")
		return storage.NewStorageError("clear merge refs", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit merge reset")
		return storage.NewStorageError("commit merge reset", err)
	}

	r.logger.WithContext(ctx).Info("Cleared merged records and merge refs")
	return nil
}
