package tap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeContext(t *testing.T) {
	record := Record{"id": "L1", "order_id": nil, "merchant_id": "M9"}
	MergeContext(record, NewContext("merchant_id", "M1", "order_id", "O1", "employee_id", "E1"))

	assert.Equal(t, Record{
		"id":          "L1",
		"merchant_id": "M9",
		"order_id":    "O1",
		"employee_id": "E1",
	}, record)
}
