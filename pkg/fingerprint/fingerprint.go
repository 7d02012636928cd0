package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/yarrow-bio/yarrow/pkg/models"
)

// volatileFields are excluded from the hash: they describe sync and merge
// state, not source content, and would defeat the no-op short circuit.
var volatileFields = map[string]bool{
	string(models.FieldMergeRef):    true,
	string(models.FieldFingerprint): true,
}

// Record computes a deterministic content hash for a therapy record.
// Equal source content always hashes equal regardless of field ordering
// inside set attributes.
func Record(t *models.Therapy) string {
	raw, err := json.Marshal(t)
	if err != nil {
		return ""
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	for field := range volatileFields {
		delete(m, field)
	}

	hash := sha256.Sum256([]byte(canonicalize(m)))
	return hex.EncodeToString(hash[:])
}

// HasChanged compares two fingerprints. An empty stored fingerprint always
// reads as changed so legacy rows get re-diffed once.
func HasChanged(stored, incoming string) bool {
	return stored == "" || stored != incoming
}

// canonicalize renders a JSON value as a deterministic string: map keys
// sorted, array elements of string arrays sorted.
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v)
	case []any:
		return canonicalizeArray(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		keyJSON, _ := json.Marshal(k)
		b.Write(keyJSON)
		b.WriteString(":")
		b.WriteString(canonicalize(m[k]))
	}
	b.WriteString("}")
	return b.String()
}

func canonicalizeArray(arr []any) string {
	parts := make([]string, 0, len(arr))
	allStrings := true
	for _, v := range arr {
		if _, ok := v.(string); !ok {
			allStrings = false
		}
		parts = append(parts, canonicalize(v))
	}
	// Set attributes carry no meaningful order.
	if allStrings {
		sort.Strings(parts)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
