package store

import "strings"

// Increment is a patch value that adds By to the field's current numeric
// value, starting from zero when the field is absent. Adapters resolve it
// while holding their write lock (the memory store under its mutex,
// postgres under the row lock), so concurrent increments never lose an
// update. Mirrors a reactive store's server-side increment sentinel.
type Increment struct {
	By int64
}

// ApplyPatch merges patch into doc in place. A dotted key addresses a
// nested field ("participant_details.u1.typing"), mirroring how reactive
// stores patch a single map entry without rewriting the whole document.
func ApplyPatch(doc, patch Document) {
	for key, value := range patch {
		setField(doc, key, value)
	}
}

func setField(doc Document, key string, value any) {
	for {
		i := strings.IndexByte(key, '.')
		if i < 0 {
			if inc, ok := value.(Increment); ok {
				doc[key] = patchNumber(doc[key]) + inc.By
				return
			}
			doc[key] = value
			return
		}
		head, rest := key[:i], key[i+1:]
		next, ok := doc[head].(map[string]any)
		if !ok {
			next = map[string]any{}
			doc[head] = next
		}
		doc, key = next, rest
	}
}

func patchNumber(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
