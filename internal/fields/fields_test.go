package fields

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliostore/folio/internal/fault"
)

func TestJSONCodec_References(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	payload := json.RawMessage(`{
		"title": "hello",
		"related": [{"$ref": "` + a.String() + `"}, {"$ref": "` + b.String() + `"}],
		"again": {"$ref": "` + a.String() + `"},
		"notARef": {"$ref": "` + a.String() + `", "extra": 1},
		"garbage": {"$ref": "not-a-uuid"}
	}`)

	refs, err := JSONCodec{}.References(payload)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, refs, "duplicates collapse, malformed nodes are skipped")
}

func TestJSONCodec_Locations(t *testing.T) {
	payload := json.RawMessage(`{
		"venue": {"lat": 52.52, "lng": 13.405},
		"stops": [{"lat": 0, "lng": 180}],
		"notALocation": {"lat": "52.52", "lng": 13.405}
	}`)

	locs, err := JSONCodec{}.Locations(payload)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Location{{52.52, 13.405}, {0, 180}}, locs)
}

func TestJSONCodec_Text(t *testing.T) {
	ref := uuid.New()
	payload := json.RawMessage(`{
		"a": "alpha",
		"b": {"c": "charlie", "link": {"$ref": "` + ref.String() + `"}},
		"z": ["zulu", 42, true]
	}`)

	text, err := JSONCodec{}.Text(payload)
	require.NoError(t, err)
	assert.Equal(t, "alpha charlie zulu", text, "strings in key order, ref targets excluded")
}

func TestJSONCodec_EmptyPayload(t *testing.T) {
	c := JSONCodec{}

	refs, err := c.References(nil)
	require.NoError(t, err)
	assert.Empty(t, refs)

	text, err := c.Text(json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestJSONCodec_MalformedPayload(t *testing.T) {
	_, err := JSONCodec{}.References(json.RawMessage(`{nope`))
	require.Error(t, err)
	assert.True(t, fault.IsBadRequest(err))
}
