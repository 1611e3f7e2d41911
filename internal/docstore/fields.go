package docstore

import (
	"fmt"
	"strings"
)

// mergeTopLevel copies the given fields over the document's top-level keys,
// leaving siblings intact.
func mergeTopLevel(doc, fields map[string]any) {
	for k, v := range fields {
		doc[k] = deepCopyValue(v)
	}
}

// applyFieldPath sets a dotted field path inside doc, creating intermediate
// maps as needed. A non-map intermediate value is an error rather than a
// silent overwrite.
func applyFieldPath(doc map[string]any, fieldPath string, value any) error {
	segs := strings.Split(fieldPath, ".")
	cur := doc
	for i, seg := range segs {
		if seg == "" {
			return fmt.Errorf("docstore: empty segment in field path %q", fieldPath)
		}
		if i == len(segs)-1 {
			cur[seg] = deepCopyValue(value)
			return nil
		}
		next, ok := cur[seg]
		if !ok || next == nil {
			child := make(map[string]any)
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("docstore: field path %q crosses non-map value at %q", fieldPath, seg)
		}
		cur = child
	}
	return nil
}

// deepCopyDoc clones a document so callers never share mutable state with the
// store.
func deepCopyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
