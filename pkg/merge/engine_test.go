package merge

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/storage"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestEngine(store storage.Store) *Engine {
	return NewEngine(store, nil, testLogger(), 2)
}

// seedPhenobarbital loads a four-source group linked through cross-references.
func seedPhenobarbital(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	records := []*models.Therapy{
		{
			ConceptID: "rxcui:8134",
			Label:     "Phenobarbital",
			Aliases:   []string{"phenobarb"},
			Xrefs:     []string{"ncit:C739", "wikidata:Q407241"},
			Source:    models.SourceRxNorm,
		},
		{
			ConceptID: "ncit:C739",
			Label:     "Phenobarbital",
			Aliases:   []string{"PHENOBARBITONE"},
			Xrefs:     []string{"chemidplus:50-06-6"},
			Source:    models.SourceNCIt,
		},
		{
			ConceptID: "chemidplus:50-06-6",
			Label:     "Phenobarbital",
			Xrefs:     []string{"rxcui:8134"},
			Source:    models.SourceChemIDplus,
		},
		{
			ConceptID: "wikidata:Q407241",
			Label:     "phenobarbital",
			Aliases:   []string{"Luminal"},
			Source:    models.SourceWikidata,
		},
	}
	for _, r := range records {
		require.NoError(t, store.PutIdentity(ctx, r))
	}
}

func TestCreateRecordIDSetFollowsXrefs(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPhenobarbital(t, store)
	engine := newTestEngine(store)

	members, err := engine.CreateRecordIDSet(context.Background(), "rxcui:8134")
	require.NoError(t, err)
	assert.Equal(t, []string{"chemidplus:50-06-6", "ncit:C739", "rxcui:8134", "wikidata:Q407241"}, members)

	// any member resolves to the same group
	members, err = engine.CreateRecordIDSet(context.Background(), "wikidata:Q407241")
	require.NoError(t, err)
	assert.Equal(t, []string{"chemidplus:50-06-6", "ncit:C739", "rxcui:8134", "wikidata:Q407241"}, members)
}

func TestCreateRecordIDSetKeepsDanglingMember(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := newTestEngine(store)

	members, err := engine.CreateRecordIDSet(context.Background(), "ncit:c000000")
	require.NoError(t, err)
	assert.Equal(t, []string{"ncit:c000000"}, members)
}

func TestCreateMergedConceptsPhenobarbital(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPhenobarbital(t, store)
	engine := newTestEngine(store)
	ctx := context.Background()

	report, err := engine.CreateMergedConcepts(ctx, []string{"rxcui:8134", "ncit:C739", "chemidplus:50-06-6", "wikidata:Q407241"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 4, report.Records)
	assert.Equal(t, 0, report.Dangling)

	mergedID := "rxcui:8134|ncit:C739|chemidplus:50-06-6|wikidata:Q407241"
	merged, err := store.GetMerged(ctx, mergedID)
	require.NoError(t, err)
	assert.Equal(t, "Phenobarbital", merged.Label)
	assert.ElementsMatch(t, []string{"phenobarb", "PHENOBARBITONE", "Luminal"}, merged.Aliases)

	for _, id := range []string{"rxcui:8134", "ncit:C739", "chemidplus:50-06-6", "wikidata:Q407241"} {
		record, err := store.GetIdentity(ctx, id, false)
		require.NoError(t, err)
		assert.Equal(t, mergedID, record.MergeRef, id)
	}
}

func TestCreateMergedConceptsDedupesOverlappingSeeds(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPhenobarbital(t, store)
	engine := newTestEngine(store)

	// every member seeds the same group, but only one record set is written
	report, err := engine.CreateMergedConcepts(context.Background(), []string{
		"rxcui:8134", "rxcui:8134", "ncit:C739", "wikidata:Q407241", "chemidplus:50-06-6",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups)
}

func TestCreateMergedConceptsCoalescesDeadEndGroups(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := NewEngine(store, nil, testLogger(), 1)
	ctx := context.Background()

	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID: "rxcui:2555",
		Label:     "Cisplatin",
		Xrefs:     []string{"wikidata:Q412415"},
		Source:    models.SourceRxNorm,
	}))
	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID: "wikidata:Q412415",
		Label:     "cisplatin",
		Source:    models.SourceWikidata,
	}))

	// the dead end is seeded before anything links to it, so its singleton
	// group is memoized first and only the later traversal sees the union
	report, err := engine.CreateMergedConcepts(ctx, []string{"wikidata:Q412415", "rxcui:2555"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 2, report.Records)

	record, err := store.GetIdentity(ctx, "wikidata:Q412415", false)
	require.NoError(t, err)
	assert.Equal(t, "rxcui:2555|wikidata:Q412415", record.MergeRef)

	// no merged record for the stale singleton
	_, err = store.GetMerged(ctx, "wikidata:Q412415")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateMergedConceptsExcludesDanglingFromCompositeID(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID: "rxcui:2555",
		Label:     "Cisplatin",
		Xrefs:     []string{"drugbank:DB99999"},
		Source:    models.SourceRxNorm,
	}))

	report, err := engine.CreateMergedConcepts(ctx, []string{"rxcui:2555"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 1, report.Dangling)

	merged, err := store.GetMerged(ctx, "rxcui:2555")
	require.NoError(t, err)
	assert.Equal(t, "rxcui:2555", merged.ConceptID)
}

func TestMergeAllResetsPreviousPass(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPhenobarbital(t, store)
	engine := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.MergeAll(ctx)
	require.NoError(t, err)

	// break the group apart and rerun
	record, err := store.GetIdentity(ctx, "rxcui:8134", false)
	require.NoError(t, err)
	record.Xrefs = nil
	record.MergeRef = ""
	require.NoError(t, store.PutIdentity(ctx, record))

	record, err = store.GetIdentity(ctx, "chemidplus:50-06-6", false)
	require.NoError(t, err)
	record.Xrefs = nil
	record.MergeRef = ""
	require.NoError(t, store.PutIdentity(ctx, record))

	report, err := engine.MergeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Groups)

	// the stale four-way record is gone
	_, err = store.GetMerged(ctx, "rxcui:8134|ncit:C739|chemidplus:50-06-6|wikidata:Q407241")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	record, err = store.GetIdentity(ctx, "rxcui:8134", false)
	require.NoError(t, err)
	assert.Equal(t, "rxcui:8134", record.MergeRef)
}

func TestGenerateMergedRecordPriorityOrder(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	// stored in reverse priority order on purpose
	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID: "wikidata:Q412415",
		Label:     "cisplatin",
		Xrefs:     []string{"chembl:CHEMBL11359"},
		Source:    models.SourceWikidata,
	}))
	require.NoError(t, store.PutIdentity(ctx, &models.Therapy{
		ConceptID:      "chembl:CHEMBL11359",
		Label:          "CISPLATIN",
		ApprovalStatus: models.ApprovalStatusApproved,
		Source:         models.SourceChEMBL,
	}))

	report, err := engine.CreateMergedConcepts(ctx, []string{"wikidata:Q412415"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups)

	merged, err := store.GetMerged(ctx, "chembl:CHEMBL11359|wikidata:Q412415")
	require.NoError(t, err)
	assert.Equal(t, "CISPLATIN", merged.Label)
	assert.Equal(t, models.ApprovalStatusApproved, merged.ApprovalStatus)
}
