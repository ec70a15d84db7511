// Package fallback provides the static product catalog bundled with the binary.
// It is the last source of products when neither the upstream feed nor any
// cache has data.
package fallback

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/valcommerce/storefront/internal/domain"
)

//go:embed catalog.json
var bundled []byte

// Catalog loads raw fallback records from an optional override file or the bundled copy
type Catalog struct {
	overridePath string
}

// NewCatalog creates a fallback catalog. An empty overridePath uses the bundled copy only.
func NewCatalog(overridePath string) *Catalog {
	return &Catalog{overridePath: overridePath}
}

// RemoteProducts returns the fallback records. A missing or unusable override
// file is logged and the bundled catalog is used instead.
func (c *Catalog) RemoteProducts() ([]domain.RemoteProduct, error) {
	if c.overridePath != "" {
		products, err := c.readOverride()
		if err == nil && len(products) > 0 {
			return products, nil
		}
		log.Printf("[Fallback] override unusable, using bundled catalog path=%s err=%v", c.overridePath, err)
	}

	return decode(bundled)
}

func (c *Catalog) readOverride() ([]domain.RemoteProduct, error) {
	data, err := os.ReadFile(c.overridePath)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// decode accepts a bare array or a {products: [...]} document
func decode(data []byte) ([]domain.RemoteProduct, error) {
	trimmed := bytes.TrimSpace(data)

	var products []domain.RemoteProduct
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var envelope struct {
			Products []domain.RemoteProduct `json:"products"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: fallback catalog: %v", domain.ErrMalformedResponse, err)
		}
		products = envelope.Products
	} else if err := json.Unmarshal(trimmed, &products); err != nil {
		return nil, fmt.Errorf("%w: fallback catalog: %v", domain.ErrMalformedResponse, err)
	}

	return products, nil
}
