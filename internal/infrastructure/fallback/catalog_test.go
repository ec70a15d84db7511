package fallback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valcommerce/storefront/internal/domain"
)

func TestBundledCatalog(t *testing.T) {
	products, err := NewCatalog("").RemoteProducts()

	require.NoError(t, err)
	require.NotEmpty(t, products)
	for _, p := range products {
		assert.NotEmpty(t, p.ID.String())
		assert.NotEmpty(t, p.Title)
	}
}

func TestOverrideFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"bare array", `[{"id":1,"title":"One"}]`, []string{"One"}},
		{"products envelope", `{"products":[{"id":2,"title":"Two"},{"id":3,"title":"Three"}]}`, []string{"Two", "Three"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fallback.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			products, err := NewCatalog(path).RemoteProducts()
			require.NoError(t, err)

			titles := make([]string, 0, len(products))
			for _, p := range products {
				titles = append(titles, p.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestUnusableOverrideUsesBundled(t *testing.T) {
	bundledProducts, err := NewCatalog("").RemoteProducts()
	require.NoError(t, err)

	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.json")
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{not json`), 0o644))
	require.NoError(t, os.WriteFile(empty, []byte(`[]`), 0o644))

	for _, path := range []string{broken, empty, filepath.Join(dir, "missing.json")} {
		products, err := NewCatalog(path).RemoteProducts()
		require.NoError(t, err)
		assert.Len(t, products, len(bundledProducts))
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := decode([]byte(`"nope"`))
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}
