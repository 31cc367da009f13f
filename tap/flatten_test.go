package tap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatten(t *testing.T) {
	record := map[string]any{
		"id": "O1",
		"employee": map[string]any{
			"id":   "E1",
			"role": map[string]any{"name": "MANAGER"},
		},
		"lineItems": []any{
			map[string]any{"name": "Coffee", "price": 350},
			"note",
		},
		"_links": map[string]any{"self": map[string]any{"href": "/v3/orders/O1"}},
		"self":   map[string]any{"href": "/v3/orders/O1"},
	}

	got := Flatten(record, DefaultFlattenSeparator)

	assert.Equal(t, map[string]any{
		"id":                  "O1",
		"employee_id":         "E1",
		"employee_role_name":  "MANAGER",
		"lineItems_0_name":    "Coffee",
		"lineItems_0_price":   350,
		"lineItems_1":         "note",
		"_links":              map[string]any{"self": map[string]any{"href": "/v3/orders/O1"}},
		"self":                map[string]any{"href": "/v3/orders/O1"},
	}, got)
}

func TestFlatten_Nested(t *testing.T) {
	assert.Equal(t, map[string]any{"a_b": 1}, Flatten(map[string]any{"a": map[string]any{"b": 1}}, "_"))
	assert.Equal(t, map[string]any{"a.b": 1}, Flatten(map[string]any{"a": map[string]any{"b": 1}}, "."))
}

func TestFlatten_Idempotent(t *testing.T) {
	flat := map[string]any{"id": "M1", "name": "Cafe", "total": 100, "open": true, "closed": nil}
	once := Flatten(flat, "_")
	assert.Equal(t, flat, once)
	assert.Equal(t, once, Flatten(once, "_"))
}

func TestFlatten_OpaqueKeysNested(t *testing.T) {
	record := map[string]any{
		"owner": map[string]any{
			"name":      "Ann",
			"_embedded": []any{map[string]any{"x": 1}},
		},
	}
	assert.Equal(t, map[string]any{
		"owner_name":      "Ann",
		"owner__embedded": []any{map[string]any{"x": 1}},
	}, Flatten(record, "_"))
}

func TestFlatten_EmptyContainersVanish(t *testing.T) {
	got := Flatten(map[string]any{"id": "1", "tags": []any{}, "meta": map[string]any{}}, "_")
	assert.Equal(t, map[string]any{"id": "1"}, got)
}

func TestFlatten_CollidingKeysAreStable(t *testing.T) {
	record := map[string]any{
		"a_b": "flat",
		"a":   map[string]any{"b": "nested", "c": []any{"x"}},
		"a_c": []any{"y"},
	}
	for i := 0; i < 200; i++ {
		got := Flatten(record, DefaultFlattenSeparator)
		assert.Equal(t, map[string]any{"a_b": "flat", "a_c_0": "y"}, got)
	}
}
