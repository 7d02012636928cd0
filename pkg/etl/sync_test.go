package etl

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/storage"
)

func newTestSynchronizer(store storage.Store) *Synchronizer {
	return NewSynchronizer(store, nil, nil, testLogger())
}

func rxnormExtract() []models.Therapy {
	return []models.Therapy{
		{
			ConceptID:  "rxcui:2555",
			Label:      "Cisplatin",
			Aliases:    []string{"CDDP", "cis-platinum"},
			TradeNames: []string{"Platinol"},
			Xrefs:      []string{"drugbank:DB00515"},
			Source:     models.SourceRxNorm,
		},
		{
			ConceptID: "rxcui:8134",
			Label:     "Phenobarbital",
			Aliases:   []string{"phenobarb"},
			Source:    models.SourceRxNorm,
		},
	}
}

func TestSyncSourceAddsNewRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	sync := newTestSynchronizer(store)
	ctx := context.Background()

	report, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, rxnormExtract())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, report.Retired)
	assert.Empty(t, report.Skipped)

	stored, err := store.GetIdentity(ctx, "rxcui:2555", false)
	require.NoError(t, err)
	assert.Equal(t, "Cisplatin", stored.Label)
	assert.NotEmpty(t, stored.Fingerprint)

	ids, err := store.GetByTerm(ctx, "cddp", models.ItemTypeAlias)
	require.NoError(t, err)
	assert.Equal(t, []string{"rxcui:2555"}, ids)

	ids, err = store.GetByTerm(ctx, "PLATINOL", models.ItemTypeTradeName)
	require.NoError(t, err)
	assert.Equal(t, []string{"rxcui:2555"}, ids)
}

func TestSyncSourceIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	sync := newTestSynchronizer(store)
	ctx := context.Background()

	_, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, rxnormExtract())
	require.NoError(t, err)

	report, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, rxnormExtract())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 2, report.Unchanged)
	assert.Equal(t, 0, report.Retired)
}

func TestSyncSourceUpdatesChangedRecord(t *testing.T) {
	store := storage.NewMemoryStore()
	sync := newTestSynchronizer(store)
	ctx := context.Background()

	_, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, rxnormExtract())
	require.NoError(t, err)

	next := rxnormExtract()
	next[0].Aliases = []string{"cis-platinum", "cis-DDP"}

	report, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, next)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Unchanged)

	stored, err := store.GetIdentity(ctx, "rxcui:2555", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cis-platinum", "cis-DDP"}, stored.Aliases)

	// the dropped alias entry is gone, the new one is findable
	ids, err := store.GetByTerm(ctx, "cddp", models.ItemTypeAlias)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = store.GetByTerm(ctx, "cis-ddp", models.ItemTypeAlias)
	require.NoError(t, err)
	assert.Equal(t, []string{"rxcui:2555"}, ids)
}

func TestSyncSourceClearsMergeRefWhenXrefsRemoved(t *testing.T) {
	store := storage.NewMemoryStore()
	sync := newTestSynchronizer(store)
	ctx := context.Background()

	_, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, rxnormExtract())
	require.NoError(t, err)

	patch := models.NewRecordPatch()
	patch.Set(models.FieldMergeRef, "rxcui:2555|drugbank:db00515")
	require.NoError(t, store.UpdateFields(ctx, "rxcui:2555", patch))

	next := rxnormExtract()
	next[0].Xrefs = nil

	report, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, next)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)

	stored, err := store.GetIdentity(ctx, "rxcui:2555", false)
	require.NoError(t, err)
	assert.Empty(t, stored.Xrefs)
	assert.Empty(t, stored.MergeRef)
}

func TestSyncSourceRetiresMissingRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	sync := newTestSynchronizer(store)
	ctx := context.Background()

	_, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, rxnormExtract())
	require.NoError(t, err)

	report, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, rxnormExtract()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retired)

	_, err = store.GetIdentity(ctx, "rxcui:8134", false)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ids, err := store.GetByTerm(ctx, "phenobarbital", models.ItemTypeLabel)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// records from other sources are untouched
	_, err = store.GetIdentity(ctx, "rxcui:2555", false)
	assert.NoError(t, err)
}

func TestSyncSourceSkipsInvalidRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	sync := newTestSynchronizer(store)
	ctx := context.Background()

	records := []models.Therapy{
		{ConceptID: "rxcui:2555", Label: "Cisplatin", Source: models.SourceRxNorm},
		{ConceptID: "no-namespace", Label: "Broken", Source: models.SourceRxNorm},
		{ConceptID: "ncit:C739", Label: "Phenobarbital", Source: models.SourceRxNorm},
	}

	report, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, records)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, "no-namespace", report.Skipped[0].ConceptID)
	assert.Equal(t, "ncit:C739", report.Skipped[1].ConceptID)
}

func TestSyncSourceDropsOverfullAttribute(t *testing.T) {
	store := storage.NewMemoryStore()
	sync := newTestSynchronizer(store)
	ctx := context.Background()

	aliases := make([]string, 0, models.AttributeCap+1)
	for i := 0; i <= models.AttributeCap; i++ {
		aliases = append(aliases, fmt.Sprintf("alias-%d", i))
	}
	records := []models.Therapy{{
		ConceptID: "rxcui:2555",
		Label:     "Cisplatin",
		Aliases:   aliases,
		Source:    models.SourceRxNorm,
	}}

	report, err := sync.SyncSource(ctx, models.SourceRxNorm, nil, records)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)

	stored, err := store.GetIdentity(ctx, "rxcui:2555", false)
	require.NoError(t, err)
	assert.Empty(t, stored.Aliases)

	// no alias ever reached the reverse index
	for i := 0; i <= models.AttributeCap; i++ {
		ids, err := store.GetByTerm(ctx, fmt.Sprintf("alias-%d", i), models.ItemTypeAlias)
		require.NoError(t, err)
		assert.Empty(t, ids)
	}

	ids, err := store.GetByTerm(ctx, "cisplatin", models.ItemTypeLabel)
	require.NoError(t, err)
	assert.Equal(t, []string{"rxcui:2555"}, ids)
}

func TestSyncSourceStoresMetadata(t *testing.T) {
	store := storage.NewMemoryStore()
	sync := newTestSynchronizer(store)
	ctx := context.Background()

	meta := &models.SourceMeta{
		Source:         models.SourceRxNorm,
		DataLicense:    "UMLS Metathesaurus",
		DataLicenseURL: "https://www.nlm.nih.gov/research/umls/rxnorm/docs/termsofservice.html",
		Version:        "20260801",
	}

	_, err := sync.SyncSource(ctx, models.SourceRxNorm, meta, rxnormExtract())
	require.NoError(t, err)

	got, err := store.GetSourceMeta(ctx, models.SourceRxNorm)
	require.NoError(t, err)
	assert.Equal(t, "20260801", got.Version)
}
