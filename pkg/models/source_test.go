package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourcePriorityOrdering(t *testing.T) {
	assert.Less(t, SourceRxNorm.Priority(), SourceNCIt.Priority())
	assert.Less(t, SourceNCIt.Priority(), SourceHemOnc.Priority())
	assert.Less(t, SourceChemIDplus.Priority(), SourceWikidata.Priority())
	assert.Greater(t, SourceName("unknown").Priority(), SourceWikidata.Priority())
}

func TestSourceValid(t *testing.T) {
	for _, src := range AllSources {
		assert.True(t, src.Valid(), string(src))
	}
	assert.False(t, SourceName("pubchem").Valid())
	assert.False(t, SourceName("").Valid())
}

func TestSourceForConceptID(t *testing.T) {
	tests := []struct {
		conceptID string
		source    SourceName
		ok        bool
	}{
		{"rxcui:2555", SourceRxNorm, true},
		{"RXCUI:2555", SourceRxNorm, true},
		{"ncit:C739", SourceNCIt, true},
		{"drugsatfda.nda:020649", SourceDrugsAtFDA, true},
		{"drugsatfda.anda:074656", SourceDrugsAtFDA, true},
		{"iuphar.ligand:5343", SourceGuideToPharmacology, true},
		{"unii:Q20Q21Q62J", "", false},
		{"bare-term", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.conceptID, func(t *testing.T) {
			src, ok := SourceForConceptID(tt.conceptID)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.source, src)
		})
	}
}

func TestMergedRecordMemberIDs(t *testing.T) {
	merged := &MergedRecord{ConceptID: "rxcui:8134|ncit:C739|chemidplus:50-06-6"}
	assert.Equal(t, []string{"rxcui:8134", "ncit:C739", "chemidplus:50-06-6"}, merged.MemberIDs())

	single := &MergedRecord{ConceptID: "rxcui:8134"}
	assert.Equal(t, []string{"rxcui:8134"}, single.MemberIDs())

	assert.Nil(t, (&MergedRecord{}).MemberIDs())
}
