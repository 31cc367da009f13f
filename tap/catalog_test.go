package tap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	graph, err := NewStreamGraph(CloverStreams())
	require.NoError(t, err)

	catalog, err := Discover(graph, DefaultSchemas())
	require.NoError(t, err)
	require.Len(t, catalog.Streams, len(CloverStreams()))

	entries := make(map[string]CatalogEntry, len(catalog.Streams))
	for _, entry := range catalog.Streams {
		entries[entry.TapStreamID] = entry
	}

	payments := entries["payments"]
	assert.Equal(t, "Payments", payments.Title)
	assert.Equal(t, Incremental, payments.ReplicationMethod)
	assert.Equal(t, "modifiedTime", payments.ReplicationKey)
	assert.Equal(t, []string{"id", "merchant_id"}, payments.KeyProperties)
	assert.Equal(t, MerchantsStream, payments.Parent)
	assert.Contains(t, payments.Schema["properties"], "amount")
	require.Len(t, payments.Metadata, 1)
	assert.Empty(t, payments.Metadata[0].Breadcrumb)
	assert.Equal(t, []string{"modifiedTime"}, payments.Metadata[0].Metadata["valid-replication-keys"])

	lineItems := entries["order_line_items"]
	assert.Equal(t, "OrderLineItems", lineItems.Title)
	assert.Equal(t, FullTable, lineItems.ReplicationMethod)
	assert.Equal(t, true, lineItems.Schema["additionalProperties"])
	assert.Nil(t, lineItems.Selected)

	data, err := json.Marshal(catalog)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"breadcrumb":[]`)
}

func TestLoadCatalog_Selected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	doc := `{"streams":[
		{"tap_stream_id":"payments","stream":"payments","selected":true},
		{"tap_stream_id":"refunds","stream":"refunds","selected":false,
		 "metadata":[{"breadcrumb":[],"metadata":{"selected":true}}]},
		{"tap_stream_id":"OrderLineItems","stream":"OrderLineItems",
		 "metadata":[{"breadcrumb":["properties","id"],"metadata":{"selected":false}},
		             {"breadcrumb":[],"metadata":{"selected":true}}]},
		{"stream":"customers","schema":{"selected":true}},
		{"tap_stream_id":"employees","stream":"employees"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"payments", "order_line_items", "customers"}, catalog.Selected())

	require.NoError(t, os.WriteFile(path, []byte(`{"streams":`), 0o600))
	_, err = LoadCatalog(path)
	assert.Error(t, err)
}

func TestNormalizeStreamName(t *testing.T) {
	assert.Equal(t, "order_line_items", NormalizeStreamName("OrderLineItems"))
	assert.Equal(t, "order_line_items", NormalizeStreamName("order-line-items"))
	assert.Equal(t, "payments", NormalizeStreamName(" payments "))
}

func TestEmbeddedSchemas(t *testing.T) {
	schemas := DefaultSchemas()
	list, err := schemas.Names()
	require.NoError(t, err)
	assert.Contains(t, list, "payments")

	custom := EmbeddedSchemas{Root: "schemas", Files: fstest.MapFS{
		"schemas/broken.json": {Data: []byte(`{"type":`)},
	}}
	_, err = custom.Schema(StreamDefinition{Name: "broken"})
	assert.Error(t, err)

	generated, err := custom.Schema(StreamDefinition{
		Name:           "refunds",
		PrimaryKeys:    byIDInMerchant,
		ReplicationKey: "modifiedTime",
	})
	require.NoError(t, err)
	properties := generated["properties"].(map[string]any)
	assert.Contains(t, properties, "merchant_id")
	assert.Contains(t, properties, "modifiedTime")
}
