// Package fields is the seam between the entity store and the field-value
// domain model it deliberately does not own.
//
// The store treats a version's payload as opaque bytes; a Codec extracts
// the three projections the store maintains: reference edges, indexed
// locations, and free-text bodies. JSONCodec is the default Codec for
// JSON payloads; callers with their own payload format supply their own.
package fields

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/foliostore/folio/internal/fault"
)

// Location is one indexed geographic point.
type Location struct {
	Lat float64
	Lng float64
}

// Codec derives projections from an opaque field payload. All three
// projections are rebuildable: given the stored payload, the same codec
// must produce the same results.
type Codec interface {
	// References returns the external ids of entities the payload points at.
	References(payload json.RawMessage) ([]uuid.UUID, error)

	// Locations returns the payload's indexable geographic points.
	Locations(payload json.RawMessage) ([]Location, error)

	// Text returns the payload's free-text body for the search index.
	Text(payload json.RawMessage) (string, error)
}

// JSONCodec walks an arbitrary JSON document.
//
// A reference is an object of the form {"$ref": "<uuid>"}. A location is
// an object with numeric "lat" and "lng" members. The text body is every
// other string value in the document, in encounter order.
type JSONCodec struct{}

// References implements Codec.
func (JSONCodec) References(payload json.RawMessage) ([]uuid.UUID, error) {
	doc, err := decode(payload)
	if err != nil {
		return nil, err
	}
	var refs []uuid.UUID
	walk(doc, func(node map[string]any) {
		if len(node) != 1 {
			return
		}
		raw, ok := node["$ref"].(string)
		if !ok {
			return
		}
		if id, err := uuid.Parse(raw); err == nil {
			refs = append(refs, id)
		}
	})
	return dedupe(refs), nil
}

// Locations implements Codec.
func (JSONCodec) Locations(payload json.RawMessage) ([]Location, error) {
	doc, err := decode(payload)
	if err != nil {
		return nil, err
	}
	var locs []Location
	walk(doc, func(node map[string]any) {
		lat, latOK := node["lat"].(float64)
		lng, lngOK := node["lng"].(float64)
		if latOK && lngOK {
			locs = append(locs, Location{Lat: lat, Lng: lng})
		}
	})
	return locs, nil
}

// Text implements Codec.
func (JSONCodec) Text(payload json.RawMessage) (string, error) {
	doc, err := decode(payload)
	if err != nil {
		return "", err
	}
	var parts []string
	collectStrings(doc, &parts)
	return strings.Join(parts, " "), nil
}

func decode(payload json.RawMessage) (any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fault.BadRequest("field payload is not valid JSON: %v", err)
	}
	return doc, nil
}

// walk visits every JSON object in the document.
func walk(node any, visit func(map[string]any)) {
	switch n := node.(type) {
	case map[string]any:
		visit(n)
		for _, k := range sortedKeys(n) {
			walk(n[k], visit)
		}
	case []any:
		for _, v := range n {
			walk(v, visit)
		}
	}
}

// collectStrings gathers string values, skipping reference targets so
// uuids do not pollute the text index.
func collectStrings(node any, out *[]string) {
	switch n := node.(type) {
	case string:
		*out = append(*out, n)
	case map[string]any:
		if len(n) == 1 {
			if _, ok := n["$ref"]; ok {
				return
			}
		}
		for _, k := range sortedKeys(n) {
			collectStrings(n[k], out)
		}
	case []any:
		for _, v := range n {
			collectStrings(v, out)
		}
	}
}

// sortedKeys fixes the visit order; map iteration would make the text
// body nondeterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
