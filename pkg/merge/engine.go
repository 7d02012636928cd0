package merge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/yarrow-bio/yarrow/pkg/events"
	"github.com/yarrow-bio/yarrow/pkg/models"
	"github.com/yarrow-bio/yarrow/pkg/storage"
	"github.com/yarrow-bio/yarrow/pkg/tracing"
)

// Engine computes concept groups over cross-reference links and writes the
// canonical merged record for each group. Group discovery is memoized:
// once any member's group is known, every member resolves without another
// traversal.
type Engine struct {
	store   storage.Store
	emitter *events.Emitter
	logger  ectologger.Logger
	workers int

	mu     sync.Mutex
	groups map[string][]string // lower(concept id) -> completed group members
}

// NewEngine builds a merge engine. The emitter may be nil. workers bounds
// the concurrent group discoveries in a batch pass.
func NewEngine(store storage.Store, emitter *events.Emitter, logger ectologger.Logger, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		store:   store,
		emitter: emitter,
		logger:  logger,
		workers: workers,
		groups:  map[string][]string{},
	}
}

// Report summarizes one merge pass.
type Report struct {
	Groups   int
	Records  int
	Dangling int
}

// CreateRecordIDSet returns the full concept group reachable from seed
// through stored cross-references. Traversal uses an explicit worklist; a
// referenced id with no stored record stays in the group as a dangling
// member and is logged, never fatal.
func (e *Engine) CreateRecordIDSet(ctx context.Context, seed string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Engine.CreateRecordIDSet")
	defer span.End()

	if cached, ok := e.cachedGroup(seed); ok {
		return cached, nil
	}

	group := map[string]string{} // lower(id) -> id as stored or referenced
	queue := []string{seed}

	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		key := strings.ToLower(id)
		if _, seen := group[key]; seen {
			continue
		}

		if cached, ok := e.cachedGroup(id); ok {
			// a memoized member pulls in its whole group
			for _, member := range cached {
				if _, seen := group[strings.ToLower(member)]; !seen {
					queue = append(queue, member)
				}
			}
			group[key] = id
			continue
		}

		record, err := e.store.GetIdentity(ctx, id, false)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				group[key] = id
				e.logger.WithContext(ctx).WithFields(map[string]any{"concept_id": id, "seed": seed}).Warn("Cross-reference points at a missing record")
				continue
			}
			return nil, err
		}

		group[key] = record.ConceptID
		for _, xref := range record.Xrefs {
			if _, seen := group[strings.ToLower(xref)]; !seen {
				queue = append(queue, xref)
			}
		}
	}

	members := make([]string, 0, len(group))
	for _, id := range group {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool {
		return strings.ToLower(members[i]) < strings.ToLower(members[j])
	})

	e.mu.Lock()
	for key := range group {
		e.groups[key] = members
	}
	e.mu.Unlock()

	return members, nil
}

func (e *Engine) cachedGroup(id string) ([]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cached, ok := e.groups[strings.ToLower(id)]
	return cached, ok
}

// CreateMergedConcepts discovers the group for every given concept id,
// deduplicates overlapping groups, and writes one merged record plus
// merge_ref back-pointers per group.
func (e *Engine) CreateMergedConcepts(ctx context.Context, conceptIDs []string) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Engine.CreateMergedConcepts")
	defer span.End()

	unique, err := e.discoverGroups(ctx, conceptIDs)
	if err != nil {
		return nil, err
	}
	unique = coalesceGroups(unique)

	keys := make([]string, 0, len(unique))
	for key := range unique {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	report := &Report{}
	for _, key := range keys {
		merged, resolved, dangling, err := e.generateMergedRecord(ctx, unique[key])
		if err != nil {
			return report, err
		}
		report.Dangling += dangling
		if merged == nil {
			continue
		}

		if err := e.store.PutMerged(ctx, merged); err != nil {
			return report, err
		}
		for _, id := range resolved {
			patch := models.NewRecordPatch().Set(models.FieldMergeRef, merged.ConceptID)
			if err := e.store.UpdateFields(ctx, id, patch); err != nil {
				return report, err
			}
		}

		report.Groups++
		report.Records += len(resolved)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"groups":   report.Groups,
		"records":  report.Records,
		"dangling": report.Dangling,
	}).Info("Merge pass complete")

	return report, nil
}

// MergeAll resets the previous pass and regenerates merged records for
// every stored concept across all sources.
func (e *Engine) MergeAll(ctx context.Context) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Engine.MergeAll")
	defer span.End()

	e.mu.Lock()
	e.groups = map[string][]string{}
	e.mu.Unlock()

	if err := e.store.DeleteMergedRecords(ctx); err != nil {
		return nil, err
	}

	var ids []string
	for _, source := range models.AllSources {
		cursor := ""
		for {
			page, next, err := e.store.ScanSource(ctx, source, cursor, 500)
			if err != nil {
				return nil, err
			}
			ids = append(ids, page...)
			if next == "" {
				break
			}
			cursor = next
		}
	}

	report, err := e.CreateMergedConcepts(ctx, ids)
	if err != nil {
		return report, err
	}

	_ = e.emitter.EmitConceptsMerged(ctx, report.Groups, report.Records, report.Dangling)
	return report, nil
}

// discoverGroups runs group discovery over a worker pool and collapses
// overlapping results onto one canonical group key.
func (e *Engine) discoverGroups(ctx context.Context, conceptIDs []string) (map[string][]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	unique := map[string][]string{}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errOnce  sync.Once
		firstErr error
	)

	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if ctx.Err() != nil {
					continue
				}
				members, err := e.CreateRecordIDSet(ctx, id)
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					continue
				}
				mu.Lock()
				unique[groupKey(members)] = members
				mu.Unlock()
			}
		}()
	}

	for _, id := range conceptIDs {
		select {
		case jobs <- id:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return unique, nil
}

// coalesceGroups unions discovered groups that share a member. A dead-end
// record seeded before any traversal reaches it memoizes a singleton that
// a later traversal absorbs but does not remove from the discovery set;
// left alone, both groups would write merged records and the subset would
// clobber the member's merge_ref. Every concept must land in exactly one
// group.
func coalesceGroups(groups map[string][]string) map[string][]string {
	parent := map[string]string{}
	display := map[string]string{}

	find := func(key string) string {
		for parent[key] != key {
			key = parent[key]
		}
		return key
	}

	for _, members := range groups {
		first := ""
		for _, member := range members {
			key := strings.ToLower(member)
			if _, ok := parent[key]; !ok {
				parent[key] = key
				display[key] = member
			}
			if first == "" {
				first = key
				continue
			}
			parent[find(key)] = find(first)
		}
	}

	components := map[string][]string{}
	for key := range parent {
		root := find(key)
		components[root] = append(components[root], display[key])
	}

	out := make(map[string][]string, len(components))
	for _, members := range components {
		sort.Slice(members, func(i, j int) bool {
			return strings.ToLower(members[i]) < strings.ToLower(members[j])
		})
		out[groupKey(members)] = members
	}
	return out
}

func groupKey(members []string) string {
	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, strings.ToLower(m))
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

// generateMergedRecord builds the canonical record for one group. Members
// sort by source priority then concept id; scalar fields come from the
// first member defining them and set fields are unions. Dangling members
// are dropped from the composite id.
func (e *Engine) generateMergedRecord(ctx context.Context, members []string) (*models.MergedRecord, []string, int, error) {
	records := make([]*models.Therapy, 0, len(members))
	dangling := 0
	for _, id := range members {
		record, err := e.store.GetIdentity(ctx, id, false)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				dangling++
				e.logger.WithContext(ctx).WithFields(map[string]any{"concept_id": id}).Warn("Skipping dangling group member")
				continue
			}
			return nil, nil, dangling, err
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, nil, dangling, nil
	}

	sort.Slice(records, func(i, j int) bool {
		pi, pj := records[i].Source.Priority(), records[j].Source.Priority()
		if pi != pj {
			return pi < pj
		}
		return records[i].ConceptID < records[j].ConceptID
	})

	merged := &models.MergedRecord{}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ConceptID)
		if merged.Label == "" {
			merged.Label = record.Label
		}
		if merged.ApprovalStatus == "" {
			merged.ApprovalStatus = record.ApprovalStatus
		}
		merged.Aliases = unionStrings(merged.Aliases, record.Aliases)
		merged.TradeNames = unionStrings(merged.TradeNames, record.TradeNames)
		merged.Xrefs = unionStrings(merged.Xrefs, record.Xrefs)
		merged.AssociatedWith = unionStrings(merged.AssociatedWith, record.AssociatedWith)
		merged.ApprovalYear = unionInts(merged.ApprovalYear, record.ApprovalYear)
		merged.HasIndication = unionIndications(merged.HasIndication, record.HasIndication)
	}
	merged.ConceptID = strings.Join(ids, "|")

	resolved := make([]string, 0, len(records))
	for _, record := range records {
		resolved = append(resolved, record.ConceptID)
	}
	return merged, resolved, dangling, nil
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	out := a
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func unionInts(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	seen := make(map[int]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	out := a
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func unionIndications(a, b []models.Indication) []models.Indication {
	if len(b) == 0 {
		return a
	}
	seen := make(map[models.Indication]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	out := a
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
