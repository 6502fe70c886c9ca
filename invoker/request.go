package invoker

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/kroma-labs/restify-go/endpoint"
	"github.com/kroma-labs/restify-go/httpclient"
)

// buildRequest binds args to e and returns the request before interceptors.
func (c *Client) buildRequest(e endpoint.Endpoint, args []any) (httpclient.Request, error) {
	values := make(map[string]string)
	path := e.Path
	query := url.Values{}
	var headers []endpoint.Header
	var body any
	var bodyType reflect.Type

	for _, p := range e.Parameters {
		if p.Index >= len(args) {
			return httpclient.Request{}, fmt.Errorf(
				"invoker: %s: %s parameter %q wants argument %d, got %d arguments",
				e.Name, p.Kind, p.Name, p.Index, len(args))
		}
		arg := args[p.Index]

		switch p.Kind {
		case endpoint.ParamPath:
			s := formatValue(arg)
			values[p.Name] = s
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(s))
		case endpoint.ParamQuery:
			for _, s := range formatValues(arg) {
				query.Add(p.Name, s)
			}
			if s, ok := firstValue(arg); ok {
				values[p.Name] = s
			}
		case endpoint.ParamHeader:
			for _, s := range formatValues(arg) {
				headers = append(headers, endpoint.Header{Name: p.Name, Value: s})
			}
			if s, ok := firstValue(arg); ok {
				values[p.Name] = s
			}
		case endpoint.ParamBody:
			body, bodyType = arg, p.Type
		}
	}

	u, err := c.resolveURL(path)
	if err != nil {
		return httpclient.Request{}, fmt.Errorf("invoker: %s: %w", e.Name, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q[k] = append(q[k], vs...)
		}
		u.RawQuery = q.Encode()
	}

	req := httpclient.NewRequest(e.HTTPMethod(), u)
	for _, h := range e.Headers {
		req = req.WithHeader(h.Name, expand(h.Value, values))
	}
	for _, h := range headers {
		req = req.WithHeader(h.Name, h.Value)
	}
	if body != nil {
		req = req.WithBody(body, bodyType)
	}

	md := req.Metadata()
	md.Endpoint = e.Name
	md.Timeout = e.Options.Timeout
	if md.Timeout == 0 {
		md.Timeout = c.cfg.timeout
	}
	md.Version = e.Options.Version
	if md.Version == "" {
		md.Version = c.cfg.version
	}
	return req.WithMetadata(md), nil
}

// resolveURL joins a relative path to the base URL. Absolute paths are used
// as they are.
func (c *Client) resolveURL(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() || c.cfg.baseURL == nil {
		return ref, nil
	}

	base := *c.cfg.baseURL
	if base.Path == "" {
		base.Path = "/"
	}
	u := base.JoinPath(ref.EscapedPath())
	switch {
	case ref.RawQuery == "":
	case u.RawQuery == "":
		u.RawQuery = ref.RawQuery
	default:
		u.RawQuery += "&" + ref.RawQuery
	}
	return u, nil
}

// expand replaces {name} placeholders in a header template.
func expand(template string, values map[string]string) string {
	if !strings.Contains(template, "{") {
		return template
	}
	for name, v := range values {
		template = strings.ReplaceAll(template, "{"+name+"}", v)
	}
	return template
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// formatValues expands slices and arrays into one value per element. Nil
// pointers and nil slices produce no value.
func formatValues(v any) []string {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return formatValues(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return []string{formatValue(v)}
		}
		out := make([]string, 0, rv.Len())
		for i := range rv.Len() {
			out = append(out, formatValue(rv.Index(i).Interface()))
		}
		return out
	}
	return []string{formatValue(v)}
}

func firstValue(v any) (string, bool) {
	vs := formatValues(v)
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
