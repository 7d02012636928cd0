package sourcemeta

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/yarrow-bio/yarrow/pkg/database"
	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/storage"
	"github.com/yarrow-bio/yarrow/pkg/tracing"
)

const tableName = "therapy_metadata"

var columns = []string{
	"src_name",
	"data_license",
	"data_license_url",
	"version",
	"data_url",
	"rdp_url",
	"non_commercial",
	"share_alike",
	"attribution_required",
}

// Repository persists per-source release metadata, one row per catalog.
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

func (r *Repository) GetSourceMeta(ctx context.Context, source models.SourceName) (*models.SourceMeta, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcemeta.Repository.GetSourceMeta")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("src_name", source))

	query, args := sb.Build()
	var meta models.SourceMeta
	if err := r.db.GetContext(ctx, &meta, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, storage.ErrNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"src_name": source}).Error("Failed to get source metadata")
		return nil, storage.NewStorageError("get source meta", err)
	}

	return &meta, nil
}

func (r *Repository) PutSourceMeta(ctx context.Context, meta *models.SourceMeta) error {
	ctx, span := tracing.StartSpan(ctx, "sourcemeta.Repository.PutSourceMeta")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(append(append([]string{}, columns...), "updated_at")...)
	ib.Values(
		meta.Source,
		meta.DataLicense,
		meta.DataLicenseURL,
		meta.Version,
		meta.DataURL,
		meta.RdpURL,
		meta.NonCommercial,
		meta.ShareAlike,
		meta.AttributionRequired,
		time.Now().UTC(),
	)

	ub := ib.OnConflict("src_name")
	for _, col := range append(columns[1:], "updated_at") {
		ub.Set(ub.Assign(col, database.Excluded(col)))
	}

	query, args := ib.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"src_name": meta.Source}).Error("Failed to put source metadata")
		return storage.NewStorageError("put source meta", err)
	}

	return nil
}

func (r *Repository) ListSourceMeta(ctx context.Context) ([]models.SourceMeta, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcemeta.Repository.ListSourceMeta")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.OrderBy("src_name ASC")

	query, args := sb.Build()
	metas := []models.SourceMeta{}
	if err := r.db.SelectContext(ctx, &metas, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list source metadata")
		return nil, storage.NewStorageError("list source meta", err)
	}

	return metas, nil
}
