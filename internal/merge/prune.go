package merge

import "github.com/beebs-dev/dorch/internal/domain"

// pruneRecord null-prunes the free-form provenance maps embedded in
// Sources, then nils out File/Content/Sources entirely once they end up
// empty, since omitempty only drops a nil pointer — a zero-valued struct
// behind a non-nil pointer still serializes.
func pruneRecord(rec domain.MergedRecord) domain.MergedRecord {
	if rec.Sources != nil {
		rec.Sources.PrimaryIndex = pruneMap(rec.Sources.PrimaryIndex)
		rec.Sources.CrossReference = pruneMap(rec.Sources.CrossReference)
		rec.Sources.Extracted = pruneMap(rec.Sources.Extracted)
		if rec.Sources.IsZero() {
			rec.Sources = nil
		}
	}
	if rec.File != nil && rec.File.IsZero() {
		rec.File = nil
	}
	if rec.Content != nil && rec.Content.IsZero() {
		rec.Content = nil
	}
	return rec
}

// pruneMap recursively removes keys whose value is nil, an empty string, an
// empty slice, or an empty map, returning nil if nothing survives.
func pruneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := map[string]any{}
	for k, v := range m {
		pv, keep := pruneValue(v)
		if keep {
			out[k] = pv
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func pruneValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		pm := pruneMap(t)
		if pm == nil {
			return nil, false
		}
		return pm, true
	case []any:
		var out []any
		for _, item := range t {
			pv, keep := pruneValue(item)
			if keep {
				out = append(out, pv)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	case string:
		if t == "" {
			return nil, false
		}
		return t, true
	default:
		return v, true
	}
}
