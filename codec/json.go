package codec

import (
	"reflect"

	"github.com/goccy/go-json"

	"github.com/kroma-labs/restify-go/httpclient"
)

type jsonCodec struct{}

// JSON returns the application/json codec. It reads and writes any type
// encoding/json semantics allow, including vendor "+json" types.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) MediaTypes() []MediaType {
	return []MediaType{ApplicationJSON, MustParseMediaType("application/*+json")}
}

func (jsonCodec) CanRead(t reflect.Type) bool  { return jsonable(t) }
func (jsonCodec) CanWrite(t reflect.Type) bool { return jsonable(t) }

func (jsonCodec) Read(resp *httpclient.Response, t reflect.Type) (any, error) {
	data, err := resp.Bytes()
	if err != nil {
		return nil, err
	}
	return newValue(t, func(target any) error {
		return json.Unmarshal(data, target)
	})
}

func (jsonCodec) Write(v any, out *httpclient.Outgoing) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = out.Body().Write(data)
	return err
}

func jsonable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return false
	}
	return true
}
