package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/yarrow-bio/yarrow/pkg/disease"
	"github.com/yarrow-bio/yarrow/pkg/events"
	"github.com/yarrow-bio/yarrow/pkg/fingerprint"
	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/storage"
	"github.com/yarrow-bio/yarrow/pkg/tracing"
)

const defaultScanPageSize = 500

// Synchronizer reconciles a fresh extract of a source against what is
// already stored, touching only what changed. Records present in both are
// diffed field by field, new ones are written whole, and stored concepts
// the extract no longer mentions are retired.
type Synchronizer struct {
	store        storage.Store
	indexer      *Indexer
	diseases     disease.Normalizer
	emitter      *events.Emitter
	validate     *validator.Validate
	logger       ectologger.Logger
	scanPageSize int
}

// NewSynchronizer builds a synchronizer. The disease normalizer and the
// emitter may be nil; indication resolution and eventing are skipped then.
func NewSynchronizer(store storage.Store, diseases disease.Normalizer, emitter *events.Emitter, logger ectologger.Logger) *Synchronizer {
	return &Synchronizer{
		store:        store,
		indexer:      NewIndexer(store, logger),
		diseases:     diseases,
		emitter:      emitter,
		validate:     validator.New(),
		logger:       logger,
		scanPageSize: defaultScanPageSize,
	}
}

// SyncReport summarizes one source pass.
type SyncReport struct {
	Source    models.SourceName
	Added     int
	Updated   int
	Unchanged int
	Retired   int
	Skipped   []*ValidationError
}

// SyncSource loads one source's records. Validation failures skip the
// single record and are collected in the report; storage errors abort the
// pass. Running the same extract twice is a no-op.
func (s *Synchronizer) SyncSource(ctx context.Context, source models.SourceName, meta *models.SourceMeta, records []models.Therapy) (*SyncReport, error) {
	ctx, span := tracing.StartSpan(ctx, "etl.Synchronizer.SyncSource")
	defer span.End()

	report := &SyncReport{Source: source}

	pending, err := s.snapshotSource(ctx, source)
	if err != nil {
		return report, err
	}

	for i := range records {
		record := records[i].Clone()
		if record.Source == "" {
			record.Source = source
		}

		if err := s.validateRecord(record, source); err != nil {
			var verr *ValidationError
			errors.As(err, &verr)
			report.Skipped = append(report.Skipped, verr)
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"concept_id": record.ConceptID, "src_name": source}).Warn("Skipping invalid record")
			continue
		}

		s.resolveIndications(ctx, record)
		s.indexer.PrepareRecord(record)
		record.Fingerprint = fingerprint.Record(record)

		key := strings.ToLower(record.ConceptID)
		_, known := pending[key]
		delete(pending, key)

		if !known {
			// identity first so no reference ever points at a missing record
			if err := s.store.PutIdentity(ctx, record); err != nil {
				return report, err
			}
			if err := s.indexer.WriteReferences(ctx, record); err != nil {
				return report, err
			}
			report.Added++
			continue
		}

		stored, err := s.store.GetIdentity(ctx, record.ConceptID, false)
		if err != nil {
			return report, err
		}

		if !fingerprint.HasChanged(stored.Fingerprint, record.Fingerprint) {
			report.Unchanged++
			continue
		}

		if err := s.applyUpdate(ctx, stored, record); err != nil {
			return report, err
		}
		report.Updated++
	}

	if err := s.retire(ctx, source, pending, report); err != nil {
		return report, err
	}

	if meta != nil {
		if err := s.store.PutSourceMeta(ctx, meta); err != nil {
			return report, err
		}
	}

	version := ""
	if meta != nil {
		version = meta.Version
	}
	_ = s.emitter.EmitSourceSynced(ctx, source, version, report.Added, report.Updated, report.Unchanged, report.Retired, len(report.Skipped))

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"src_name":  source,
		"added":     report.Added,
		"updated":   report.Updated,
		"unchanged": report.Unchanged,
		"retired":   report.Retired,
		"skipped":   len(report.Skipped),
	}).Info("Synced source")

	return report, nil
}

// snapshotSource pages through the stored concept ids for a source,
// keyed by lowercased id for casing-insensitive membership checks.
func (s *Synchronizer) snapshotSource(ctx context.Context, source models.SourceName) (map[string]string, error) {
	out := map[string]string{}
	cursor := ""
	for {
		ids, next, err := s.store.ScanSource(ctx, source, cursor, s.scanPageSize)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out[strings.ToLower(id)] = id
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

func (s *Synchronizer) validateRecord(record *models.Therapy, source models.SourceName) error {
	if err := s.validate.Struct(record); err != nil {
		return &ValidationError{ConceptID: record.ConceptID, Err: err}
	}
	if record.Source != source {
		return &ValidationError{ConceptID: record.ConceptID, Err: fmt.Errorf("record source %q does not match pass source %q", record.Source, source)}
	}
	if owner, ok := models.SourceForConceptID(record.ConceptID); ok && owner != source {
		return &ValidationError{ConceptID: record.ConceptID, Err: fmt.Errorf("concept id namespace belongs to %q", owner)}
	}
	return nil
}

// resolveIndications fills missing normalized disease ids. Failures are
// logged and the unresolved term kept.
func (s *Synchronizer) resolveIndications(ctx context.Context, record *models.Therapy) {
	if s.diseases == nil {
		return
	}
	for i := range record.HasIndication {
		indication := &record.HasIndication[i]
		if indication.NormalizedDiseaseID != "" {
			continue
		}
		id, err := s.diseases.Normalize(ctx, indication.DiseaseLabel)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"concept_id": record.ConceptID,
				"disease":    indication.DiseaseLabel,
			}).Warn("Failed to normalize disease indication")
			continue
		}
		indication.NormalizedDiseaseID = id
	}
}

// applyUpdate diffs the incoming record against the stored one and applies
// a targeted patch. New reference entries are written before the record
// update, stale ones deleted after, so a crash mid-update leaves only
// extra-but-harmless entries.
func (s *Synchronizer) applyUpdate(ctx context.Context, stored, incoming *models.Therapy) error {
	ctx, span := tracing.StartSpan(ctx, "etl.Synchronizer.applyUpdate")
	defer span.End()

	patch := models.NewRecordPatch()
	var refAdds, refDels []ReferenceEntry

	for _, attr := range models.IndexedAttributes {
		oldValues := attr.Get(stored)
		newValues := attr.Get(incoming)
		added, removed := diffSets(oldValues, newValues)
		for _, v := range added {
			refAdds = append(refAdds, ReferenceEntry{Term: v, Type: attr.Type})
		}
		for _, v := range removed {
			refDels = append(refDels, ReferenceEntry{Term: v, Type: attr.Type})
		}
		if len(added) == 0 && len(removed) == 0 {
			continue
		}
		if len(newValues) == 0 {
			patch.Remove(attr.Field)
			// losing all xrefs can move this record into a different
			// group, so any previously computed pointer is stale
			if attr.Field == models.FieldXrefs && stored.MergeRef != "" {
				patch.Remove(models.FieldMergeRef)
			}
			continue
		}
		if attr.Scalar {
			patch.Set(attr.Field, newValues[0])
		} else {
			patch.Set(attr.Field, newValues)
		}
	}

	if stored.ApprovalStatus != incoming.ApprovalStatus {
		if incoming.ApprovalStatus == "" {
			patch.Remove(models.FieldApprovalStatus)
		} else {
			patch.Set(models.FieldApprovalStatus, incoming.ApprovalStatus)
		}
	}

	if !equalIntSets(stored.ApprovalYear, incoming.ApprovalYear) {
		if len(incoming.ApprovalYear) == 0 {
			patch.Remove(models.FieldApprovalYear)
		} else {
			patch.Set(models.FieldApprovalYear, incoming.ApprovalYear)
		}
	}

	if !equalIndications(stored.HasIndication, incoming.HasIndication) {
		if len(incoming.HasIndication) == 0 {
			patch.Remove(models.FieldHasIndication)
		} else {
			patch.Set(models.FieldHasIndication, incoming.HasIndication)
		}
	}

	patch.Set(models.FieldFingerprint, incoming.Fingerprint)

	for _, entry := range refAdds {
		if err := s.store.PutReference(ctx, entry.Term, stored.ConceptID, entry.Type, incoming.Source); err != nil {
			return err
		}
	}
	if err := s.store.UpdateFields(ctx, stored.ConceptID, patch); err != nil {
		return err
	}
	for _, entry := range refDels {
		if err := s.store.DeleteReference(ctx, entry.Term, stored.ConceptID, entry.Type); err != nil {
			return err
		}
	}

	return nil
}

// retire removes stored concepts the extract no longer mentions,
// references first so no entry is ever left pointing at a deleted record.
func (s *Synchronizer) retire(ctx context.Context, source models.SourceName, pending map[string]string, report *SyncReport) error {
	ids := make([]string, 0, len(pending))
	for _, id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		stored, err := s.store.GetIdentity(ctx, id, false)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return err
		}
		if err := s.indexer.DeleteReferences(ctx, stored); err != nil {
			return err
		}
		if err := s.store.DeleteIdentity(ctx, id); err != nil {
			return err
		}
		_ = s.emitter.EmitConceptRetired(ctx, id, source)
		report.Retired++
	}
	return nil
}

// diffSets returns the values present only in the new set and only in the
// old set, comparing exact stored casing.
func diffSets(oldValues, newValues []string) (added, removed []string) {
	oldSet := make(map[string]bool, len(oldValues))
	for _, v := range oldValues {
		oldSet[v] = true
	}
	newSet := make(map[string]bool, len(newValues))
	for _, v := range newValues {
		newSet[v] = true
	}
	for _, v := range newValues {
		if !oldSet[v] {
			added = append(added, v)
		}
	}
	for _, v := range oldValues {
		if !newSet[v] {
			removed = append(removed, v)
		}
	}
	return added, removed
}

func equalIntSets(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]int(nil), a...)
	bs := append([]int(nil), b...)
	sort.Ints(as)
	sort.Ints(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func equalIndications(a, b []models.Indication) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(in models.Indication) string {
		raw, _ := json.Marshal(in)
		return string(raw)
	}
	seen := make(map[string]int, len(a))
	for _, in := range a {
		seen[key(in)]++
	}
	for _, in := range b {
		seen[key(in)]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
