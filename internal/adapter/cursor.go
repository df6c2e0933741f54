package adapter

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/foliostore/folio/internal/fault"
)

// CursorType is the native type of an ordering's cursor column.
type CursorType int

const (
	// CursorInt is used by the createdAt (internal id) and updatedAt
	// (update sequence) orderings.
	CursorInt CursorType = iota

	// CursorString is used by the name ordering.
	CursorString
)

// CursorValue is a decoded cursor-column value of one of the two native
// types. Exactly one of Int/Str is meaningful, selected by Type.
type CursorValue struct {
	Type CursorType
	Int  int64
	Str  string
}

// IntCursor builds an integer cursor value.
func IntCursor(v int64) CursorValue {
	return CursorValue{Type: CursorInt, Int: v}
}

// StringCursor builds a string cursor value.
func StringCursor(v string) CursorValue {
	return CursorValue{Type: CursorString, Str: v}
}

// Param returns the value in the form the SQL drivers expect.
func (v CursorValue) Param() any {
	if v.Type == CursorInt {
		return v.Int
	}
	return v.Str
}

// EncodeCursor produces the opaque wire form of a cursor value.
//
// The payload is a one-letter type tag, a separator, and the value, then
// base64url. The tag keeps encodings unambiguous across the two native
// types: decode(encode(v)) == v for every value of either type.
func EncodeCursor(v CursorValue) string {
	var payload string
	if v.Type == CursorInt {
		payload = "i|" + strconv.FormatInt(v.Int, 10)
	} else {
		payload = "s|" + v.Str
	}
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// DecodeCursor reverses EncodeCursor. A malformed opaque string, or one
// whose type tag does not match the ordering's declared cursor type, is a
// BadRequest fault.
func DecodeCursor(opaque string, want CursorType) (CursorValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(opaque)
	if err != nil {
		return CursorValue{}, fault.BadRequest("malformed cursor %q", opaque)
	}
	tag, rest, ok := strings.Cut(string(raw), "|")
	if !ok {
		return CursorValue{}, fault.BadRequest("malformed cursor %q", opaque)
	}
	switch tag {
	case "i":
		if want != CursorInt {
			return CursorValue{}, fault.BadRequest("cursor %q does not match ordering", opaque)
		}
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return CursorValue{}, fault.BadRequest("malformed cursor %q", opaque)
		}
		return IntCursor(n), nil
	case "s":
		if want != CursorString {
			return CursorValue{}, fault.BadRequest("cursor %q does not match ordering", opaque)
		}
		return StringCursor(rest), nil
	default:
		return CursorValue{}, fault.BadRequest("malformed cursor %q", opaque)
	}
}
