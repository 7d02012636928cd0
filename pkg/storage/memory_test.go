package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarrow-bio/yarrow/pkg/models"
)

func TestLabelAndType(t *testing.T) {
	assert.Equal(t, "cisplatin##label", LabelAndType("Cisplatin", models.ItemTypeLabel))
	assert.Equal(t, "rxcui:2555##identity", LabelAndType("RXCUI:2555", models.ItemTypeIdentity))
}

func TestMemoryStoreIdentityCasing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID: "drugbank:DB00515",
		Label:     "Cisplatin",
		Source:    models.SourceDrugBank,
	}))

	got, err := store.GetIdentity(ctx, "DRUGBANK:db00515", false)
	require.NoError(t, err)
	assert.Equal(t, "drugbank:DB00515", got.ConceptID, "stored casing survives lookup")

	_, err = store.GetIdentity(ctx, "DRUGBANK:db00515", true)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = store.GetIdentity(ctx, "drugbank:DB00515", true)
	require.NoError(t, err)
	assert.Equal(t, "Cisplatin", got.Label)
}

func TestMemoryStoreCloneOnRead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID: "rxcui:2555",
		Aliases:   []string{"CDDP"},
		Source:    models.SourceRxNorm,
	}))

	got, err := store.GetIdentity(ctx, "rxcui:2555", false)
	require.NoError(t, err)
	got.Aliases[0] = "mutated"

	again, err := store.GetIdentity(ctx, "rxcui:2555", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"CDDP"}, again.Aliases)
}

func TestMemoryStoreReferences(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.PutReference(ctx, "Platinol", "rxcui:2555", models.ItemTypeTradeName, models.SourceRxNorm))
	require.NoError(t, store.PutReference(ctx, "platinol", "hemonc:105", models.ItemTypeTradeName, models.SourceHemOnc))

	ids, err := store.GetByTerm(ctx, "PLATINOL", models.ItemTypeTradeName)
	require.NoError(t, err)
	assert.Equal(t, []string{"hemonc:105", "rxcui:2555"}, ids)

	require.NoError(t, store.DeleteReference(ctx, "Platinol", "hemonc:105", models.ItemTypeTradeName))
	ids, err = store.GetByTerm(ctx, "platinol", models.ItemTypeTradeName)
	require.NoError(t, err)
	assert.Equal(t, []string{"rxcui:2555"}, ids)
}

func TestMemoryStoreUpdateFields(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID: "rxcui:2555",
		Label:     "Cisplatin",
		Aliases:   []string{"CDDP"},
		MergeRef:  "rxcui:2555|drugbank:DB00515",
		Source:    models.SourceRxNorm,
	}))

	patch := models.NewRecordPatch().
		Set(models.FieldAliases, []string{"cis-platinum"}).
		Remove(models.FieldMergeRef)
	require.NoError(t, store.UpdateFields(ctx, "rxcui:2555", patch))

	got, err := store.GetIdentity(ctx, "rxcui:2555", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"cis-platinum"}, got.Aliases)
	assert.Empty(t, got.MergeRef)
	assert.Equal(t, "Cisplatin", got.Label, "untouched fields survive")

	err = store.UpdateFields(ctx, "rxcui:999999", models.NewRecordPatch().Set(models.FieldLabel, "x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreScanSourcePagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
			ConceptID: fmt.Sprintf("rxcui:%d", i),
			Source:    models.SourceRxNorm,
		}))
	}
	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID: "ncit:C739",
		Source:    models.SourceNCIt,
	}))

	var all []string
	cursor := ""
	pages := 0
	for {
		ids, next, err := store.ScanSource(ctx, models.SourceRxNorm, cursor, 2)
		require.NoError(t, err)
		all = append(all, ids...)
		pages++
		if next == "" {
			break
		}
		cursor = next
	}

	assert.Len(t, all, 5)
	assert.GreaterOrEqual(t, pages, 3)
	assert.NotContains(t, all, "ncit:C739")
}

func TestMemoryStoreDeleteMergedRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID: "rxcui:2555",
		MergeRef:  "rxcui:2555|drugbank:DB00515",
		Source:    models.SourceRxNorm,
	}))
	require.NoError(t, store.PutMerged(ctx, &models.MergedRecord{ConceptID: "rxcui:2555|drugbank:DB00515"}))

	require.NoError(t, store.DeleteMergedRecords(ctx))

	_, err := store.GetMerged(ctx, "rxcui:2555|drugbank:DB00515")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetIdentity(ctx, "rxcui:2555", false)
	require.NoError(t, err)
	assert.Empty(t, got.MergeRef)
}

func TestMemoryStoreSourceMeta(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetSourceMeta(ctx, models.SourceRxNorm)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutSourceMeta(ctx, &models.SourceMeta{Source: models.SourceNCIt, Version: "25.08"}))
	require.NoError(t, store.PutSourceMeta(ctx, &models.SourceMeta{Source: models.SourceChEMBL, Version: "35"}))

	all, err := store.ListSourceMeta(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.SourceChEMBL, all[0].Source, "listing sorts by source name")
}
