package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yarrow-bio/yarrow/pkg/models"
)

func TestRecordIgnoresSetOrder(t *testing.T) {
	a := &models.Therapy{
		ConceptID: "rxcui:2555",
		Label:     "Cisplatin",
		Aliases:   []string{"CDDP", "cis-platinum"},
		Xrefs:     []string{"drugbank:DB00515", "ncit:C376"},
		Source:    models.SourceRxNorm,
	}
	b := a.Clone()
	b.Aliases = []string{"cis-platinum", "CDDP"}
	b.Xrefs = []string{"ncit:C376", "drugbank:DB00515"}

	assert.Equal(t, Record(a), Record(b))
}

func TestRecordIgnoresVolatileFields(t *testing.T) {
	a := &models.Therapy{
		ConceptID: "rxcui:2555",
		Label:     "Cisplatin",
		Source:    models.SourceRxNorm,
	}
	b := a.Clone()
	b.MergeRef = "rxcui:2555|drugbank:DB00515"
	b.Fingerprint = "stale"

	assert.Equal(t, Record(a), Record(b))
}

func TestRecordDetectsContentChange(t *testing.T) {
	a := &models.Therapy{
		ConceptID: "rxcui:2555",
		Label:     "Cisplatin",
		Aliases:   []string{"CDDP"},
		Source:    models.SourceRxNorm,
	}
	b := a.Clone()
	b.Aliases = append(b.Aliases, "cis-platinum")

	assert.NotEqual(t, Record(a), Record(b))
}

func TestHasChanged(t *testing.T) {
	assert.True(t, HasChanged("", "abc"), "empty stored fingerprint always re-diffs")
	assert.True(t, HasChanged("abc", "def"))
	assert.False(t, HasChanged("abc", "abc"))
}
