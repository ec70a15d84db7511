package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valcommerce/storefront/internal/domain"
)

func TestDecodeListing(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		count      int
		nextCursor string
		hasCursor  bool
	}{
		{"bare array", `[{"id":1},{"id":2}]`, 2, "", false},
		{"products envelope", `{"products":[{"id":1}]}`, 1, "", false},
		{"data envelope with cursor", `{"data":[{"id":1}],"nextCursor":"c2"}`, 1, "c2", true},
		{"snake case cursor", `{"items":[{"id":1}],"next_cursor":"c3"}`, 1, "c3", true},
		{"null cursor ends paging", `{"data":[],"nextCursor":null}`, 0, "", true},
		{"numeric cursor", `{"results":[{"id":1}],"nextCursor":40}`, 1, "40", true},
		{"nested data", `{"data":{"products":[{"id":1},{"id":2}],"nextCursor":"n"}}`, 2, "n", true},
		{"bad items skipped", `[{"id":1},"oops",{"id":3,"title":5}]`, 1, "", false},
		{"null products falls through to data", `{"products":null,"data":[{"id":1}]}`, 1, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := decodeListing([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, resp.Items, tt.count)
			assert.Equal(t, tt.nextCursor, resp.NextCursor)
			assert.Equal(t, tt.hasCursor, resp.HasCursor)
		})
	}
}

func TestDecodeListing_Malformed(t *testing.T) {
	bodies := []string{
		``,
		`   `,
		`<html></html>`,
		`{"message":"maintenance"}`,
		`{"products":"soon"}`,
		`[{"id":1}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			_, err := decodeListing([]byte(body))
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		})
	}
}

func TestDecodeNames(t *testing.T) {
	names, err := decodeNames([]byte(`{"brands":[{"name":"Acme"},"ACME",{"title":"Globex"},42,""]}`), "brands")
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Globex"}, names)

	_, err = decodeNames([]byte(`{"other":[]}`), "brands")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestDecodeVendors(t *testing.T) {
	vendors, err := decodeVendors([]byte(`[{"id":"a","name":"Alpha"},{"id":2,"name":" Beta "},{"name":"no id"}]`))
	require.NoError(t, err)
	assert.Equal(t, []domain.Vendor{{ID: "a", Name: "Alpha"}, {ID: "2", Name: "Beta"}}, vendors)

	_, err = decodeVendors([]byte(`"nope"`))
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}
