package store

import (
	"fmt"
	"sort"
	"strings"
)

// Path joins a collection and document id into a store path.
func Path(collection, id string) string {
	return collection + "/" + id
}

// SplitPath breaks "collection/docID" apart.
func SplitPath(path string) (collection, id string, err error) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("invalid document path %q", path)
	}
	return path[:i], path[i+1:], nil
}

// Matches evaluates every predicate of q against doc. Absent fields never
// match; there is no tri-state logic.
func Matches(doc Document, q Query) bool {
	for _, w := range q.Wheres {
		v := lookup(doc, w.Field)
		switch w.Op {
		case OpEq:
			if !valueEq(v, w.Value) {
				return false
			}
		case OpContains:
			arr, ok := v.([]any)
			if !ok {
				if ss, isStrs := v.([]string); isStrs {
					arr = make([]any, len(ss))
					for i, s := range ss {
						arr[i] = s
					}
					ok = true
				}
			}
			if !ok {
				return false
			}
			found := false
			for _, item := range arr {
				if valueEq(item, w.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Sort orders snapshots by the query's OrderBy field, document id as the
// tie-break so the result is deterministic across clients.
func Sort(snapshots []Snapshot, q Query) {
	if q.OrderBy == "" {
		sort.Slice(snapshots, func(i, j int) bool {
			return snapshots[i].ID < snapshots[j].ID
		})
		return
	}
	sort.Slice(snapshots, func(i, j int) bool {
		a := lookup(snapshots[i].Data, q.OrderBy)
		b := lookup(snapshots[j].Data, q.OrderBy)
		cmp := compareValues(a, b)
		if cmp == 0 {
			if q.Desc {
				return snapshots[i].ID > snapshots[j].ID
			}
			return snapshots[i].ID < snapshots[j].ID
		}
		if q.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// lookup resolves a possibly dotted field path ("last_message.timestamp")
// inside a document.
func lookup(doc Document, field string) any {
	parts := strings.Split(field, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func valueEq(a, b any) bool {
	if na, aNum := toFloat(a); aNum {
		if nb, bNum := toFloat(b); bNum {
			return na == nb
		}
		return false
	}
	return a == b
}

func compareValues(a, b any) int {
	if na, aNum := toFloat(a); aNum {
		nb, _ := toFloat(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	sa, _ := a.(string)
	sb, _ := b.(string)
	return strings.Compare(sa, sb)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
