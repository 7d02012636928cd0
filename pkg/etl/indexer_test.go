package etl

import (
	"fmt"
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

func TestPrepareRecord(t *testing.T) {
	indexer := NewIndexer(storage.NewMemoryStore(), testLogger())

	tests := []struct {
		name     string
		record   models.Therapy
		expected models.Therapy
	}{
		{
			name: "dedupes and trims set values",
			record: models.Therapy{
				ConceptID: "rxcui:2555",
				Label:     "  Cisplatin ",
				Aliases:   []string{" CDDP ", "CDDP", "", "cis-platinum"},
				Source:    models.SourceRxNorm,
			},
			expected: models.Therapy{
				ConceptID: "rxcui:2555",
				Label:     "Cisplatin",
				Aliases:   []string{"CDDP", "cis-platinum"},
				Source:    models.SourceRxNorm,
			},
		},
		{
			name: "label subtracted from aliases and trade names",
			record: models.Therapy{
				ConceptID:  "rxcui:8134",
				Label:      "Phenobarbital",
				Aliases:    []string{"Phenobarbital", "Luminal", "phenobarb"},
				TradeNames: []string{"Phenobarbital", "Solfoton"},
				Source:     models.SourceRxNorm,
			},
			expected: models.Therapy{
				ConceptID:  "rxcui:8134",
				Label:      "Phenobarbital",
				Aliases:    []string{"Luminal", "phenobarb"},
				TradeNames: []string{"Solfoton"},
				Source:     models.SourceRxNorm,
			},
		},
		{
			name: "aliases subtracted against trade names",
			record: models.Therapy{
				ConceptID:  "drugbank:DB00515",
				Label:      "Cisplatin",
				Aliases:    []string{"Platinol", "CDDP"},
				TradeNames: []string{"Platinol"},
				Source:     models.SourceDrugBank,
			},
			expected: models.Therapy{
				ConceptID:  "drugbank:DB00515",
				Label:      "Cisplatin",
				Aliases:    []string{"CDDP"},
				TradeNames: []string{"Platinol"},
				Source:     models.SourceDrugBank,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := tt.record
			indexer.PrepareRecord(&record)
			assert.Equal(t, tt.expected, record)
		})
	}
}

func TestPrepareRecordDropsOverfullAttribute(t *testing.T) {
	indexer := NewIndexer(storage.NewMemoryStore(), testLogger())

	aliases := make([]string, 0, models.AttributeCap+1)
	for i := 0; i <= models.AttributeCap; i++ {
		aliases = append(aliases, fmt.Sprintf("alias-%d", i))
	}

	record := models.Therapy{
		ConceptID: "chembl:CHEMBL11359",
		Label:     "Cisplatin",
		Aliases:   aliases,
		Xrefs:     []string{"rxcui:2555"},
		Source:    models.SourceChEMBL,
	}
	indexer.PrepareRecord(&record)

	// the whole attribute goes, not just the overflow
	assert.Nil(t, record.Aliases)
	assert.Equal(t, []string{"rxcui:2555"}, record.Xrefs)

	entries := ReferenceEntries(&record)
	for _, entry := range entries {
		assert.NotEqual(t, models.ItemTypeAlias, entry.Type)
	}
}

func TestPrepareRecordKeepsExactlyCapValues(t *testing.T) {
	indexer := NewIndexer(storage.NewMemoryStore(), testLogger())

	aliases := make([]string, 0, models.AttributeCap)
	for i := 0; i < models.AttributeCap; i++ {
		aliases = append(aliases, fmt.Sprintf("alias-%d", i))
	}

	record := models.Therapy{
		ConceptID: "chembl:CHEMBL11359",
		Aliases:   aliases,
		Source:    models.SourceChEMBL,
	}
	indexer.PrepareRecord(&record)

	assert.Len(t, record.Aliases, models.AttributeCap)
}

func TestReferenceEntries(t *testing.T) {
	record := models.Therapy{
		ConceptID:      "rxcui:2555",
		Label:          "Cisplatin",
		Aliases:        []string{"CDDP"},
		TradeNames:     []string{"Platinol"},
		Xrefs:          []string{"drugbank:DB00515"},
		AssociatedWith: []string{"unii:Q20Q21Q62J"},
		Source:         models.SourceRxNorm,
	}

	entries := ReferenceEntries(&record)
	require.Len(t, entries, 5)
	assert.Contains(t, entries, ReferenceEntry{Term: "Cisplatin", Type: models.ItemTypeLabel})
	assert.Contains(t, entries, ReferenceEntry{Term: "CDDP", Type: models.ItemTypeAlias})
	assert.Contains(t, entries, ReferenceEntry{Term: "Platinol", Type: models.ItemTypeTradeName})
	assert.Contains(t, entries, ReferenceEntry{Term: "drugbank:DB00515", Type: models.ItemTypeXref})
	assert.Contains(t, entries, ReferenceEntry{Term: "unii:Q20Q21Q62J", Type: models.ItemTypeAssociatedWith})
}
