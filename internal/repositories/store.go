package repositories

import (
	"github.com/Gobusters/ectologger"

	"github.com/yarrow-bio/yarrow/internal/repositories/concept"
	"github.com/yarrow-bio/yarrow/internal/repositories/sourcemeta"
	"github.com/yarrow-bio/yarrow/pkg/database"
	"github.com/yarrow-bio/yarrow/pkg/storage"
)

type conceptRepo = concept.Repository
type metaRepo = sourcemeta.Repository

// PostgresStore composes the per-table repositories into the full storage
// contract consumed by the ETL, merge, and query layers.
type PostgresStore struct {
	*conceptRepo
	*metaRepo
}

var _ storage.Store = (*PostgresStore)(nil)

func NewPostgresStore(db database.DB, logger ectologger.Logger) *PostgresStore {
	return &PostgresStore{
		conceptRepo: concept.NewRepository(db, logger),
		metaRepo:    sourcemeta.NewRepository(db, logger),
	}
}
