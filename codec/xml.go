package codec

import (
	"encoding/xml"
	"reflect"

	"github.com/kroma-labs/restify-go/httpclient"
)

type xmlCodec struct{}

// XML returns the application/xml codec. Maps and interfaces are not
// supported by encoding/xml and are rejected up front.
func XML() Codec { return xmlCodec{} }

func (xmlCodec) MediaTypes() []MediaType {
	return []MediaType{
		ApplicationXML,
		MustParseMediaType("text/xml"),
		MustParseMediaType("application/*+xml"),
	}
}

func (xmlCodec) CanRead(t reflect.Type) bool  { return xmlable(t) }
func (xmlCodec) CanWrite(t reflect.Type) bool { return xmlable(t) }

func (xmlCodec) Read(resp *httpclient.Response, t reflect.Type) (any, error) {
	data, err := resp.Bytes()
	if err != nil {
		return nil, err
	}
	return newValue(t, func(target any) error {
		return xml.Unmarshal(data, target)
	})
}

func (xmlCodec) Write(v any, out *httpclient.Outgoing) error {
	data, err := xml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = out.Body().Write(data)
	return err
}

func xmlable(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Map, reflect.Interface, reflect.Chan, reflect.Func,
		reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return false
	}
	return true
}
