package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/pario-ai/giftrouter/pkg/models"
)

// Key computes the cache key for a request: the hex SHA-256 of the
// canonical JSON of the normalised query and context.
//
// Normalisation trims and lowercases the query and collapses inner
// whitespace, lowercases and trims context keys, and lowercases and trims
// string values. Context keys are emitted in sorted order so map iteration
// order never leaks into the key. ForceProvider is not part of the key.
func Key(req models.Request) string {
	var b strings.Builder
	b.WriteString(`{"context":`)
	b.Write(canonicalize(normalizeContext(req.Context)))
	b.WriteString(`,"query":`)
	q, _ := json.Marshal(NormalizeQuery(req.Query))
	b.Write(q)
	b.WriteByte('}')

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// NormalizeQuery lowercases q, trims it and collapses runs of whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func normalizeContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	// Colliding keys after normalisation resolve deterministically: the
	// lexically last original key wins.
	sort.Strings(keys)
	for _, k := range keys {
		nk := strings.ToLower(strings.TrimSpace(k))
		if nk == "" {
			continue
		}
		out[nk] = normalizeValue(ctx[k])
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(val))
	case map[string]any:
		return normalizeContext(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case json.Number:
		return val
	default:
		// Named string types normalise like plain strings.
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
			return normalizeValue(rv.String())
		}
		return v
	}
}

// canonicalize produces a deterministic JSON representation of v.
// Maps are emitted with sorted keys.
func canonicalize(v any) []byte {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte("{")
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			out = append(out, canonicalize(val[k])...)
		}
		return append(out, '}')
	case []any:
		out := []byte("[")
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, canonicalize(item)...)
		}
		return append(out, ']')
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return []byte("null")
		}
		return data
	}
}
