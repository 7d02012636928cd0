package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/yarrow-bio/yarrow/pkg/models"
)

// MemoryStore is a map-backed Store used by tests and local development.
// It mirrors the Postgres adapter's key scheme so both honor the same
// casing and pagination semantics.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*models.Therapy     // lower(concept_id) -> record
	refs       map[string]map[string]models.SourceName // label_and_type -> concept_id -> source
	merged     map[string]*models.MergedRecord // lower(concept_id) -> record
	meta       map[models.SourceName]*models.SourceMeta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: map[string]*models.Therapy{},
		refs:       map[string]map[string]models.SourceName{},
		merged:     map[string]*models.MergedRecord{},
		meta:       map[models.SourceName]*models.SourceMeta{},
	}
}

func (s *MemoryStore) GetIdentity(_ context.Context, conceptID string, caseSensitive bool) (*models.Therapy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.identities[strings.ToLower(conceptID)]
	if !ok {
		return nil, ErrNotFound
	}
	if caseSensitive && rec.ConceptID != conceptID {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) GetByTerm(_ context.Context, term string, itemType models.ItemType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.refs[LabelAndType(term, itemType)]
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) PutIdentity(_ context.Context, record *models.Therapy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identities[strings.ToLower(record.ConceptID)] = record.Clone()
	return nil
}

func (s *MemoryStore) PutReference(_ context.Context, term, conceptID string, itemType models.ItemType, source models.SourceName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := LabelAndType(term, itemType)
	if s.refs[key] == nil {
		s.refs[key] = map[string]models.SourceName{}
	}
	s.refs[key][conceptID] = source
	return nil
}

func (s *MemoryStore) DeleteReference(_ context.Context, term, conceptID string, itemType models.ItemType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := LabelAndType(term, itemType)
	delete(s.refs[key], conceptID)
	if len(s.refs[key]) == 0 {
		delete(s.refs, key)
	}
	return nil
}

func (s *MemoryStore) DeleteIdentity(_ context.Context, conceptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.identities, strings.ToLower(conceptID))
	return nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, conceptID string, patch *models.RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.identities[strings.ToLower(conceptID)]
	if !ok {
		return ErrNotFound
	}
	for field, value := range patch.Sets {
		applyField(rec, field, value)
	}
	for _, field := range patch.Removes {
		clearField(rec, field)
	}
	return nil
}

func (s *MemoryStore) ScanSource(_ context.Context, source models.SourceName, cursor string, limit int) ([]string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]string, 0)
	for _, rec := range s.identities {
		if rec.Source == source {
			all = append(all, rec.ConceptID)
		}
	}
	sort.Strings(all)

	ids := make([]string, 0, limit)
	for _, id := range all {
		if cursor != "" && id <= cursor {
			continue
		}
		ids = append(ids, id)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	next := ""
	if limit > 0 && len(ids) == limit && ids[len(ids)-1] != all[len(all)-1] {
		next = ids[len(ids)-1]
	}
	return ids, next, nil
}

func (s *MemoryStore) GetMerged(_ context.Context, conceptID string) (*models.MergedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.merged[strings.ToLower(conceptID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) PutMerged(_ context.Context, record *models.MergedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := *record
	s.merged[strings.ToLower(record.ConceptID)] = &out
	return nil
}

func (s *MemoryStore) DeleteMergedRecords(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.merged = map[string]*models.MergedRecord{}
	for _, rec := range s.identities {
		rec.MergeRef = ""
	}
	return nil
}

func (s *MemoryStore) GetSourceMeta(_ context.Context, source models.SourceName) (*models.SourceMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.meta[source]
	if !ok {
		return nil, ErrNotFound
	}
	out := *meta
	return &out, nil
}

func (s *MemoryStore) PutSourceMeta(_ context.Context, meta *models.SourceMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := *meta
	s.meta[meta.Source] = &out
	return nil
}

func (s *MemoryStore) ListSourceMeta(_ context.Context) ([]models.SourceMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SourceMeta, 0, len(s.meta))
	for _, m := range s.meta {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// applyField and clearField mirror the JSONB patch semantics of the
// Postgres adapter on in-memory records.
func applyField(rec *models.Therapy, field models.Field, value any) {
	switch field {
	case models.FieldLabel:
		rec.Label, _ = value.(string)
	case models.FieldAliases:
		rec.Aliases = toStrings(value)
	case models.FieldTradeNames:
		rec.TradeNames = toStrings(value)
	case models.FieldXrefs:
		rec.Xrefs = toStrings(value)
	case models.FieldAssociatedWith:
		rec.AssociatedWith = toStrings(value)
	case models.FieldApprovalStatus:
		switch v := value.(type) {
		case models.ApprovalStatus:
			rec.ApprovalStatus = v
		case string:
			rec.ApprovalStatus = models.ApprovalStatus(v)
		}
	case models.FieldApprovalYear:
		if v, ok := value.([]int); ok {
			rec.ApprovalYear = v
		}
	case models.FieldHasIndication:
		if v, ok := value.([]models.Indication); ok {
			rec.HasIndication = v
		}
	case models.FieldMergeRef:
		rec.MergeRef, _ = value.(string)
	case models.FieldFingerprint:
		rec.Fingerprint, _ = value.(string)
	}
}

func clearField(rec *models.Therapy, field models.Field) {
	switch field {
	case models.FieldLabel:
		rec.Label = ""
	case models.FieldAliases:
		rec.Aliases = nil
	case models.FieldTradeNames:
		rec.TradeNames = nil
	case models.FieldXrefs:
		rec.Xrefs = nil
	case models.FieldAssociatedWith:
		rec.AssociatedWith = nil
	case models.FieldApprovalStatus:
		rec.ApprovalStatus = ""
	case models.FieldApprovalYear:
		rec.ApprovalYear = nil
	case models.FieldHasIndication:
		rec.HasIndication = nil
	case models.FieldMergeRef:
		rec.MergeRef = ""
	case models.FieldFingerprint:
		rec.Fingerprint = ""
	}
}

func toStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
