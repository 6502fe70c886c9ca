package codec

import (
	"fmt"
	"net/url"
	"reflect"

	"github.com/kroma-labs/restify-go/httpclient"
)

var (
	valuesType    = reflect.TypeOf(url.Values(nil))
	stringMapType = reflect.TypeOf(map[string]string(nil))
)

type formCodec struct{}

// Form returns the application/x-www-form-urlencoded codec. It reads into
// url.Values and writes url.Values or map[string]string.
func Form() Codec { return formCodec{} }

func (formCodec) MediaTypes() []MediaType {
	return []MediaType{FormURLEncoded}
}

func (formCodec) CanRead(t reflect.Type) bool { return t == valuesType }

func (formCodec) CanWrite(t reflect.Type) bool {
	return t == valuesType || t == stringMapType
}

func (formCodec) Read(resp *httpclient.Response, _ reflect.Type) (any, error) {
	data, err := resp.Bytes()
	if err != nil {
		return nil, err
	}
	return url.ParseQuery(string(data))
}

func (formCodec) Write(v any, out *httpclient.Outgoing) error {
	var values url.Values
	switch x := v.(type) {
	case url.Values:
		values = x
	case map[string]string:
		values = make(url.Values, len(x))
		for k, val := range x {
			values.Set(k, val)
		}
	default:
		return fmt.Errorf("form codec: unsupported value %T", v)
	}
	_, err := out.Body().Write([]byte(values.Encode()))
	return err
}
