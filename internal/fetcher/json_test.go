package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONArray_Basic(t *testing.T) {
	input := `[{"title":"Coastal Cafe","price":985000},{"title":"Bayside Gym","price":1200000}]`

	itemCh, errCh := DecodeJSONArray[map[string]any](context.Background(), strings.NewReader(input))
	items, err := collectItems(t, itemCh, errCh)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Coastal Cafe", items[0]["title"])
	assert.Equal(t, float64(1200000), items[1]["price"])
}

func TestDecodeJSONArray_Struct(t *testing.T) {
	type listing struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	input := `[{"title":"A","url":"https://example.com/a"}]`

	itemCh, errCh := DecodeJSONArray[listing](context.Background(), strings.NewReader(input))
	items, err := collectItems(t, itemCh, errCh)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/a", items[0].URL)
}

func TestDecodeJSONArray_EmptyArray(t *testing.T) {
	itemCh, errCh := DecodeJSONArray[map[string]any](context.Background(), strings.NewReader("[]"))
	items, err := collectItems(t, itemCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDecodeJSONArray_EmptyInput(t *testing.T) {
	itemCh, errCh := DecodeJSONArray[map[string]any](context.Background(), strings.NewReader(""))
	items, err := collectItems(t, itemCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDecodeJSONArray_Envelope(t *testing.T) {
	input := `{"total":2,"meta":{"page":1,"tags":["a","b"]},"listings":[{"title":"A"},{"title":"B"}]}`

	itemCh, errCh := DecodeJSONArray[map[string]any](context.Background(), strings.NewReader(input))
	items, err := collectItems(t, itemCh, errCh)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0]["title"])
	assert.Equal(t, "B", items[1]["title"])
}

func TestDecodeJSONArray_EnvelopeWithoutArray(t *testing.T) {
	itemCh, errCh := DecodeJSONArray[map[string]any](context.Background(), strings.NewReader(`{"title":"x"}`))
	_, err := collectItems(t, itemCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no array field")
}

func TestDecodeJSONArray_Scalar(t *testing.T) {
	itemCh, errCh := DecodeJSONArray[map[string]any](context.Background(), strings.NewReader(`42`))
	_, err := collectItems(t, itemCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '[' or '{'")
}

func TestDecodeJSONArray_MalformedElement(t *testing.T) {
	itemCh, errCh := DecodeJSONArray[map[string]any](context.Background(), strings.NewReader(`[{"title":}]`))
	_, err := collectItems(t, itemCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode element")
}
