package tap

import (
	"fmt"
	"slices"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ApplyFieldTransforms derives new fields on a raw JSON record.
// Each transform maps a field name to a gjson path, modifiers included, e.g.
//
//	phone_e164: "phoneNumbers.elements.0.phoneNumber|@phone:1"
//	total_decimal: "total|@currency:CLOVER_2DP"
//
// Values wrapped in backticks are set as static strings. A path that matches
// nothing leaves the field unset. Fields are applied in name order.
func ApplyFieldTransforms(json string, transforms map[string]string) (string, error) {
	if len(transforms) == 0 {
		return json, nil
	}
	Init()

	fields := make([]string, 0, len(transforms))
	for field := range transforms {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	var err error
	for _, field := range fields {
		path := transforms[field]
		if len(path) >= 2 && path[0] == '`' && path[len(path)-1] == '`' {
			json, err = sjson.Set(json, field, path[1:len(path)-1])
			if err != nil {
				return json, fmt.Errorf("invalid transform for field %s %w", field, err)
			}
			continue
		}
		result := gjson.Get(json, path)
		if !result.Exists() || result.Raw == "" {
			continue
		}
		json, err = sjson.SetRaw(json, field, result.Raw)
		if err != nil {
			return json, fmt.Errorf("invalid transform %s for field %s %w", path, field, err)
		}
	}
	return json, nil
}
