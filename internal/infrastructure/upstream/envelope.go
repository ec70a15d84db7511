package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/valcommerce/storefront/internal/domain"
)

// Keys under which the feed dialects wrap their item lists, in order of preference
var listingKeys = []string{"products", "data", "items", "results"}

// decodeListing adapts every observed listing shape to domain.RemoteResponse:
// a bare array, or an object wrapping the list under one of listingKeys with an
// optional nextCursor / next_cursor. Items that fail to decode are skipped.
func decodeListing(body []byte) (*domain.RemoteResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrMalformedResponse)
	}

	resp := &domain.RemoteResponse{}
	var rawItems []json.RawMessage

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &rawItems); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		}

		for _, key := range []string{"nextCursor", "next_cursor"} {
			if raw, ok := fields[key]; ok {
				resp.HasCursor = true
				var cursor domain.FlexValue
				if err := json.Unmarshal(raw, &cursor); err == nil && resp.NextCursor == "" {
					resp.NextCursor = cursor.String()
				}
			}
		}

		list, found := pickList(fields)
		if !found {
			return nil, fmt.Errorf("%w: no product list in envelope", domain.ErrMalformedResponse)
		}
		if bytes.HasPrefix(list, []byte("{")) {
			// {data: {products: [...], nextCursor: ...}}
			nested, err := decodeListing(list)
			if err != nil {
				return nil, err
			}
			if !resp.HasCursor {
				resp.HasCursor = nested.HasCursor
				resp.NextCursor = nested.NextCursor
			}
			resp.Items = nested.Items
			return resp, nil
		}
		if err := json.Unmarshal(list, &rawItems); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected body %.20q", domain.ErrMalformedResponse, string(trimmed))
	}

	resp.Items = make([]domain.RemoteProduct, 0, len(rawItems))
	skipped := 0
	for _, raw := range rawItems {
		var item domain.RemoteProduct
		if err := json.Unmarshal(raw, &item); err != nil {
			skipped++
			continue
		}
		resp.Items = append(resp.Items, item)
	}
	if skipped > 0 {
		log.Printf("[Upstream] skipped malformed records count=%d", skipped)
	}

	return resp, nil
}

func pickList(fields map[string]json.RawMessage) (json.RawMessage, bool) {
	for _, key := range listingKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		if trimmed[0] == '[' || trimmed[0] == '{' {
			return trimmed, true
		}
	}
	return nil, false
}

// decodeNames reads a facet listing: a bare array of strings or of objects
// carrying name/title/slug, optionally wrapped under data or one of keys.
// Names are trimmed and de-duplicated case-insensitively, first casing wins.
func decodeNames(body []byte, keys ...string) ([]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrMalformedResponse)
	}

	var entries []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		}
		found := false
		for _, key := range append([]string{"data"}, keys...) {
			raw, ok := fields[key]
			if !ok || !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
				continue
			}
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
			}
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("%w: no list in envelope", domain.ErrMalformedResponse)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected body", domain.ErrMalformedResponse)
	}

	seen := make(map[string]bool, len(entries))
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := nameOf(entry)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names, nil
}

func nameOf(entry json.RawMessage) string {
	var s string
	if err := json.Unmarshal(entry, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj struct {
		Name  string `json:"name"`
		Title string `json:"title"`
		Slug  string `json:"slug"`
	}
	if err := json.Unmarshal(entry, &obj); err != nil {
		return ""
	}
	return firstNonEmpty(obj.Name, obj.Title, obj.Slug)
}

// decodeVendors reads a bare array or {data: [...]}; entries need a non-empty id and name
func decodeVendors(body []byte) ([]domain.Vendor, error) {
	trimmed := bytes.TrimSpace(body)
	var entries []json.RawMessage

	switch {
	case bytes.HasPrefix(trimmed, []byte("[")):
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		}
	case bytes.HasPrefix(trimmed, []byte("{")):
		var envelope struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		}
		entries = envelope.Data
	default:
		return nil, fmt.Errorf("%w: unexpected body", domain.ErrMalformedResponse)
	}

	vendors := make([]domain.Vendor, 0, len(entries))
	for _, entry := range entries {
		var raw struct {
			ID   domain.FlexValue `json:"id"`
			Name domain.FlexValue `json:"name"`
		}
		if err := json.Unmarshal(entry, &raw); err != nil {
			continue
		}
		id, name := raw.ID.String(), raw.Name.String()
		if id == "" || name == "" {
			continue
		}
		vendors = append(vendors, domain.Vendor{ID: id, Name: name})
	}
	return vendors, nil
}
