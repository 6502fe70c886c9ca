// Package codec converts between Go values and HTTP bodies. A Registry holds
// an ordered list of codecs and picks one per body by media type and Go type.
package codec

import (
	"errors"
	"fmt"
	"mime"
	"reflect"
	"strings"

	"github.com/kroma-labs/restify-go/httpclient"
)

// ErrNoCodec is the cause of a ConversionError when no registered codec
// accepts the type and media type.
var ErrNoCodec = errors.New("no compatible codec")

// Codec reads and writes one family of media types.
type Codec interface {
	// MediaTypes lists the media types handled, most specific first. The
	// first entry is used as Content-Type when the request declares none.
	MediaTypes() []MediaType

	CanRead(t reflect.Type) bool

	// Read decodes the response body into a value of type t.
	Read(resp *httpclient.Response, t reflect.Type) (any, error)

	CanWrite(t reflect.Type) bool

	// Write encodes v into the body sink of out.
	Write(v any, out *httpclient.Outgoing) error
}

// MediaType is a parsed "type/subtype" with parameters. Either part may be
// "*"; a subtype of the form "*+json" matches any structured suffix.
type MediaType struct {
	Type    string
	Subtype string
	Params  map[string]string
}

// Common media types.
var (
	All             = MustParseMediaType("*/*")
	ApplicationJSON = MustParseMediaType("application/json")
	ApplicationXML  = MustParseMediaType("application/xml")
	TextPlain       = MustParseMediaType("text/plain")
	OctetStream     = MustParseMediaType("application/octet-stream")
	FormURLEncoded  = MustParseMediaType("application/x-www-form-urlencoded")
)

// ParseMediaType parses a Content-Type or Accept element.
func ParseMediaType(s string) (MediaType, error) {
	mt, params, err := mime.ParseMediaType(s)
	if err != nil {
		return MediaType{}, fmt.Errorf("parse media type %q: %w", s, err)
	}
	typ, sub, ok := strings.Cut(mt, "/")
	if !ok {
		if mt != "*" {
			return MediaType{}, fmt.Errorf("parse media type %q: missing subtype", s)
		}
		sub = "*"
	}
	return MediaType{Type: typ, Subtype: sub, Params: params}, nil
}

// MustParseMediaType is ParseMediaType for constants.
func MustParseMediaType(s string) MediaType {
	m, err := ParseMediaType(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String renders the media type without parameters.
func (m MediaType) String() string {
	return m.Type + "/" + m.Subtype
}

// IsWildcard reports whether m contains a wildcard.
func (m MediaType) IsWildcard() bool {
	return m.Type == "*" || strings.Contains(m.Subtype, "*")
}

// Includes reports whether every media type matched by o is matched by m.
func (m MediaType) Includes(o MediaType) bool {
	if m.Type == "*" {
		return true
	}
	if m.Type != o.Type {
		return false
	}
	switch {
	case m.Subtype == "*", m.Subtype == o.Subtype:
		return true
	case strings.HasPrefix(m.Subtype, "*+"):
		return strings.HasSuffix(o.Subtype, m.Subtype[1:])
	}
	return false
}

// IsCompatibleWith reports whether m and o overlap: an exact match, a
// wildcard subtype or the full wildcard on either side.
func (m MediaType) IsCompatibleWith(o MediaType) bool {
	return m.Includes(o) || o.Includes(m)
}

// compatible reports whether any of c's media types is compatible with mt.
func compatible(c Codec, mt MediaType) bool {
	for _, own := range c.MediaTypes() {
		if own.IsCompatibleWith(mt) {
			return true
		}
	}
	return false
}

// typeOrAny returns t, or the empty interface type for a nil t.
func typeOrAny(t reflect.Type) reflect.Type {
	if t == nil {
		return reflect.TypeOf((*any)(nil)).Elem()
	}
	return t
}

// newValue decodes into a fresh *t with fn and returns the element.
func newValue(t reflect.Type, fn func(target any) error) (any, error) {
	ptr := reflect.New(t)
	if err := fn(ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
