package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/storage"
	"github.com/yarrow-bio/yarrow/pkg/tracing"
)

// Service answers lookup queries over the indexed concepts. Match tiers
// are evaluated in strict descending priority; evaluation stops at the
// first tier with results.
type Service struct {
	store  storage.Store
	logger ectologger.Logger
}

func NewService(store storage.Store, logger ectologger.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// referenceTiers orders the reverse-index tiers below CONCEPT_ID. Xref and
// associated-with form the shared bottom tier; xref is checked first.
var referenceTiers = []struct {
	Match models.MatchType
	Item  models.ItemType
}{
	{models.MatchTypeLabel, models.ItemTypeLabel},
	{models.MatchTypeTradeName, models.ItemTypeTradeName},
	{models.MatchTypeAlias, models.ItemTypeAlias},
	{models.MatchTypeXref, models.ItemTypeXref},
	{models.MatchTypeAssociatedWith, models.ItemTypeAssociatedWith},
}

var (
	chemblIDPattern   = regexp.MustCompile(`^CHEMBL\d+$`)
	drugbankIDPattern = regexp.MustCompile(`^DB\d{5}$`)
	wikidataIDPattern = regexp.MustCompile(`^Q\d+$`)
	ncitIDPattern     = regexp.MustCompile(`^C\d+$`)
	casIDPattern      = regexp.MustCompile(`^\d{2,7}-\d{2}-\d$`)
	rxcuiIDPattern    = regexp.MustCompile(`^\d+$`)
)

// InferNamespace guesses the namespaced form of a bare source id, e.g.
// "DB00515" to "drugbank:DB00515". Patterns are checked most specific
// first so "Q407241" never reads as an NCIt code.
func InferNamespace(query string) (string, models.SourceName, bool) {
	q := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case chemblIDPattern.MatchString(q):
		return "chembl:" + query, models.SourceChEMBL, true
	case drugbankIDPattern.MatchString(q):
		return "drugbank:" + query, models.SourceDrugBank, true
	case wikidataIDPattern.MatchString(q):
		return "wikidata:" + query, models.SourceWikidata, true
	case ncitIDPattern.MatchString(q):
		return "ncit:" + query, models.SourceNCIt, true
	case casIDPattern.MatchString(q):
		return "chemidplus:" + query, models.SourceChemIDplus, true
	case rxcuiIDPattern.MatchString(q):
		return "rxcui:" + query, models.SourceRxNorm, true
	}
	return "", "", false
}

// Search answers a per-source (unmerged) query. Every requested source
// appears in the response; sources without a hit report NO_MATCH.
func (s *Service) Search(ctx context.Context, rawQuery string, sources []models.SourceName) (*models.SearchResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "query.Service.Search")
	defer span.End()

	resp := &models.SearchResponse{
		Query:     rawQuery,
		MatchType: models.MatchTypeNoMatch,
		Sources:   map[models.SourceName]models.SourceMatches{},
	}

	requested := sources
	if len(requested) == 0 {
		requested = models.AllSources
	}
	filter := make(map[models.SourceName]bool, len(requested))
	for _, src := range requested {
		filter[src] = true
	}

	query := strings.TrimSpace(rawQuery)
	if query != rawQuery && query != "" {
		resp.Warnings = append(resp.Warnings, models.Warning{Code: models.WarningStrippedQuery, Detail: fmt.Sprintf("query %q had surrounding whitespace", rawQuery)})
	}

	if query != "" {
		if err := s.walkTiers(ctx, query, filter, resp); err != nil {
			return nil, err
		}
	}

	for _, src := range requested {
		entry, ok := resp.Sources[src]
		if !ok {
			entry = models.SourceMatches{MatchType: models.MatchTypeNoMatch}
		}
		entry.SourceMeta = s.sourceMeta(ctx, src)
		resp.Sources[src] = entry
	}

	return resp, nil
}

// walkTiers fills per-source matches, highest tier first. A source keeps
// its first (best) tier even when lower tiers also hit.
func (s *Service) walkTiers(ctx context.Context, query string, filter map[models.SourceName]bool, resp *models.SearchResponse) error {
	add := func(matchType models.MatchType, records []models.Therapy) {
		for _, record := range records {
			src := record.Source
			if !filter[src] {
				continue
			}
			entry, matched := resp.Sources[src]
			if matched && entry.MatchType != matchType {
				continue
			}
			if !matched {
				entry = models.SourceMatches{MatchType: matchType}
			}
			entry.Records = append(entry.Records, record)
			resp.Sources[src] = entry
			if resp.MatchType == models.MatchTypeNoMatch {
				resp.MatchType = matchType
			}
		}
	}

	records, warnings, err := s.conceptIDMatches(ctx, query)
	if err != nil {
		return err
	}
	resp.Warnings = append(resp.Warnings, warnings...)
	add(models.MatchTypeConceptID, records)

	for _, tier := range referenceTiers {
		records, err := s.referenceMatches(ctx, query, tier.Item)
		if err != nil {
			return err
		}
		add(tier.Match, records)
	}

	return nil
}

// conceptIDMatches resolves the query as a concept id, trying the literal
// form first and an inferred namespaced form second.
func (s *Service) conceptIDMatches(ctx context.Context, query string) ([]models.Therapy, []models.Warning, error) {
	record, err := s.store.GetIdentity(ctx, query, false)
	if err == nil {
		return []models.Therapy{*record}, nil, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, err
	}

	inferred, _, ok := InferNamespace(query)
	if !ok {
		return nil, nil, nil
	}
	record, err = s.store.GetIdentity(ctx, inferred, false)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	warning := models.Warning{Code: models.WarningInferredNamespace, Detail: fmt.Sprintf("interpreted %q as %q", query, inferred)}
	return []models.Therapy{*record}, []models.Warning{warning}, nil
}

// referenceMatches does one reverse-index lookup and hydrates the hits.
// A reference pointing at a missing record is logged and skipped.
func (s *Service) referenceMatches(ctx context.Context, query string, itemType models.ItemType) ([]models.Therapy, error) {
	ids, err := s.store.GetByTerm(ctx, query, itemType)
	if err != nil {
		return nil, err
	}

	records := make([]models.Therapy, 0, len(ids))
	for _, id := range ids {
		record, err := s.store.GetIdentity(ctx, id, false)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.WithContext(ctx).WithFields(map[string]any{"concept_id": id, "item_type": itemType, "term": query}).Warn("Reference entry points at a missing record")
				continue
			}
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// Normalize answers a merged-group query: find the best match, then
// dereference its merge_ref to the group's canonical record.
func (s *Service) Normalize(ctx context.Context, rawQuery string) (*models.NormalizeResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "query.Service.Normalize")
	defer span.End()

	resp := &models.NormalizeResponse{
		Query:     rawQuery,
		MatchType: models.MatchTypeNoMatch,
	}

	query := strings.TrimSpace(rawQuery)
	if query != rawQuery && query != "" {
		resp.Warnings = append(resp.Warnings, models.Warning{Code: models.WarningStrippedQuery, Detail: fmt.Sprintf("query %q had surrounding whitespace", rawQuery)})
	}
	if query == "" {
		return resp, nil
	}

	records, matchType, warnings, err := s.bestMatches(ctx, query)
	if err != nil {
		return nil, err
	}
	resp.Warnings = append(resp.Warnings, warnings...)
	if len(records) == 0 {
		return resp, nil
	}
	resp.MatchType = matchType

	sort.Slice(records, func(i, j int) bool {
		pi, pj := records[i].Source.Priority(), records[j].Source.Priority()
		if pi != pj {
			return pi < pj
		}
		return records[i].ConceptID < records[j].ConceptID
	})

	for i := range records {
		if records[i].MergeRef == "" {
			continue
		}
		merged, err := s.store.GetMerged(ctx, records[i].MergeRef)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.WithContext(ctx).WithFields(map[string]any{"concept_id": records[i].ConceptID, "merge_ref": records[i].MergeRef}).Warn("Merge ref points at a missing merged record")
				continue
			}
			return nil, err
		}
		resp.Record = merged
		resp.SourceMeta = s.memberSourceMeta(ctx, merged.MemberIDs())
		return resp, nil
	}

	// no member carries a usable merge ref, so present the best record as
	// a group of one
	best := records[0]
	resp.Record = &models.MergedRecord{
		ConceptID:      best.ConceptID,
		Label:          best.Label,
		Aliases:        best.Aliases,
		TradeNames:     best.TradeNames,
		Xrefs:          best.Xrefs,
		AssociatedWith: best.AssociatedWith,
		ApprovalStatus: best.ApprovalStatus,
		ApprovalYear:   best.ApprovalYear,
		HasIndication:  best.HasIndication,
	}
	resp.SourceMeta = s.memberSourceMeta(ctx, []string{best.ConceptID})
	return resp, nil
}

// bestMatches returns every record from the first tier that hits.
func (s *Service) bestMatches(ctx context.Context, query string) ([]models.Therapy, models.MatchType, []models.Warning, error) {
	records, warnings, err := s.conceptIDMatches(ctx, query)
	if err != nil {
		return nil, models.MatchTypeNoMatch, nil, err
	}
	if len(records) > 0 {
		return records, models.MatchTypeConceptID, warnings, nil
	}

	for _, tier := range referenceTiers {
		records, err := s.referenceMatches(ctx, query, tier.Item)
		if err != nil {
			return nil, models.MatchTypeNoMatch, nil, err
		}
		if len(records) > 0 {
			return records, tier.Match, warnings, nil
		}
	}

	return nil, models.MatchTypeNoMatch, warnings, nil
}

// ListSources returns the stored release metadata for every loaded source.
func (s *Service) ListSources(ctx context.Context) ([]models.SourceMeta, error) {
	ctx, span := tracing.StartSpan(ctx, "query.Service.ListSources")
	defer span.End()

	metas, err := s.store.ListSourceMeta(ctx)
	if err != nil {
		return nil, err
	}
	return metas, nil
}

func (s *Service) sourceMeta(ctx context.Context, source models.SourceName) *models.SourceMeta {
	meta, err := s.store.GetSourceMeta(ctx, source)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"src_name": source}).Warn("Failed to load source metadata")
		}
		return nil
	}
	return meta
}

func (s *Service) memberSourceMeta(ctx context.Context, memberIDs []string) map[models.SourceName]models.SourceMeta {
	out := map[models.SourceName]models.SourceMeta{}
	for _, id := range memberIDs {
		src, ok := models.SourceForConceptID(id)
		if !ok {
			continue
		}
		if _, seen := out[src]; seen {
			continue
		}
		if meta := s.sourceMeta(ctx, src); meta != nil {
			out[src] = *meta
		}
	}
	return out
}
