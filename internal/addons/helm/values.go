package helm

import "maps"

// Values represents helm chart values as a map.
type Values map[string]any

// DeepMerge combines value maps with later maps taking precedence. Nested
// maps are merged key by key; any other value replaces what came before.
// Inputs are not modified.
func DeepMerge(valueMaps ...Values) Values {
	result := Values{}
	for _, m := range valueMaps {
		mergeInto(result, m)
	}
	return result
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := asMap(v)
		if !srcIsMap {
			dst[k] = v
			continue
		}
		dstMap, dstIsMap := asMap(dst[k])
		if !dstIsMap {
			dstMap = map[string]any{}
		} else {
			dstMap = maps.Clone(dstMap)
		}
		mergeInto(dstMap, srcMap)
		dst[k] = dstMap
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Values:
		return m, true
	default:
		return nil, false
	}
}
