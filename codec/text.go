package codec

import (
	"fmt"
	"reflect"

	"github.com/kroma-labs/restify-go/httpclient"
)

var (
	stringType = reflect.TypeOf("")
	bytesType  = reflect.TypeOf([]byte(nil))
)

type textCodec struct{}

// Text returns the text/* codec for string values.
func Text() Codec { return textCodec{} }

func (textCodec) MediaTypes() []MediaType {
	return []MediaType{TextPlain, MustParseMediaType("text/*")}
}

func (textCodec) CanRead(t reflect.Type) bool  { return t == stringType }
func (textCodec) CanWrite(t reflect.Type) bool { return t == stringType }

func (textCodec) Read(resp *httpclient.Response, _ reflect.Type) (any, error) {
	data, err := resp.Bytes()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (textCodec) Write(v any, out *httpclient.Outgoing) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("text codec: unsupported value %T", v)
	}
	_, err := out.Body().Write([]byte(s))
	return err
}

type bytesCodec struct{}

// Bytes returns a pass-through codec for []byte that accepts any media type.
func Bytes() Codec { return bytesCodec{} }

func (bytesCodec) MediaTypes() []MediaType {
	return []MediaType{OctetStream, All}
}

func (bytesCodec) CanRead(t reflect.Type) bool  { return t == bytesType }
func (bytesCodec) CanWrite(t reflect.Type) bool { return t == bytesType }

func (bytesCodec) Read(resp *httpclient.Response, _ reflect.Type) (any, error) {
	data, err := resp.Bytes()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

func (bytesCodec) Write(v any, out *httpclient.Outgoing) error {
	b, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("bytes codec: unsupported value %T", v)
	}
	_, err := out.Body().Write(b)
	return err
}
