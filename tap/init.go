package tap

import (
	"sync"

	"github.com/tidwall/gjson"
)

var initOnce sync.Once

// Init registers the gjson modifiers available to field transforms.
// It is safe to call more than once.
func Init() {
	initOnce.Do(func() {
		gjson.AddModifier("currency", currencyModifier)
		gjson.AddModifier("phone", phoneModifier)
		gjson.AddModifier("countryName", countryNameModifier)
		gjson.AddModifier("timestamp", timestampModifier)
		gjson.AddModifier("now", nowModifier)
		gjson.AddModifier("contains", containsModifier)
		gjson.AddModifier("gte", gteModifier)
	})
}
