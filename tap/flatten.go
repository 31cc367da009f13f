package tap

import (
	"maps"
	"slices"
	"strconv"
)

// DefaultFlattenSeparator joins parent and child keys of flattened records.
const DefaultFlattenSeparator = "_"

// opaqueKeys are hypermedia keys copied through without flattening.
var opaqueKeys = map[string]bool{
	"_links":    true,
	"_embedded": true,
	"self":      true,
}

// Flatten collapses nested objects and arrays into a single level record.
// Nested keys are joined with sep and array elements are suffixed with their index,
// so {"a":{"b":1},"c":[{"d":2},"x"]} becomes {"a_b":1,"c_0_d":2,"c_1":"x"}.
// Values under _links, _embedded and self are left as they are.
// Keys are visited in sorted order, so when a flat key collides with a nested
// path the result is always the same.
func Flatten(record map[string]any, sep string) map[string]any {
	result := make(map[string]any, len(record))
	flattenInto(result, record, "", sep)
	return result
}

func flattenInto(dst map[string]any, src map[string]any, prefix string, sep string) {
	for _, k := range slices.Sorted(maps.Keys(src)) {
		v := src[k]
		key := k
		if prefix != "" {
			key = prefix + sep + k
		}
		if opaqueKeys[k] {
			dst[key] = v
			continue
		}
		switch value := v.(type) {
		case map[string]any:
			flattenInto(dst, value, key, sep)
		case []any:
			for i, item := range value {
				itemKey := key + sep + strconv.Itoa(i)
				if m, ok := item.(map[string]any); ok {
					flattenInto(dst, m, itemKey, sep)
				} else {
					dst[itemKey] = item
				}
			}
		default:
			dst[key] = v
		}
	}
}
