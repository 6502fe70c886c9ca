package httpclient

import (
	"net/http"
	"sort"
	"strings"
)

// Headers is an immutable header multimap. Names are matched
// case-insensitively; values keep their insertion order, and names keep the
// order in which they were first added.
//
// The zero value is an empty set of headers.
type Headers struct {
	entries []headerEntry
}

type headerEntry struct {
	name   string
	values []string
}

// NewHeaders builds Headers from name/value pairs.
//
//	h := httpclient.NewHeaders("Accept", "application/json", "X-Trace", "1")
func NewHeaders(pairs ...string) Headers {
	var h Headers
	for i := 0; i+1 < len(pairs); i += 2 {
		h = h.Add(pairs[i], pairs[i+1])
	}
	return h
}

// HeadersFromHTTP copies an http.Header. Names are sorted since http.Header
// has no order.
func HeadersFromHTTP(src http.Header) Headers {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	h := Headers{entries: make([]headerEntry, 0, len(names))}
	for _, name := range names {
		h.entries = append(h.entries, headerEntry{
			name:   name,
			values: append([]string(nil), src[name]...),
		})
	}
	return h
}

func (h Headers) index(name string) int {
	for i, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			return i
		}
	}
	return -1
}

func (h Headers) clone() Headers {
	entries := make([]headerEntry, len(h.entries))
	for i, e := range h.entries {
		entries[i] = headerEntry{name: e.name, values: append([]string(nil), e.values...)}
	}
	return Headers{entries: entries}
}

// Get returns the first value for name, or "".
func (h Headers) Get(name string) string {
	if i := h.index(name); i >= 0 && len(h.entries[i].values) > 0 {
		return h.entries[i].values[0]
	}
	return ""
}

// Values returns a copy of all values for name.
func (h Headers) Values(name string) []string {
	if i := h.index(name); i >= 0 {
		return append([]string(nil), h.entries[i].values...)
	}
	return nil
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	return h.index(name) >= 0
}

// Names returns the header names in insertion order.
func (h Headers) Names() []string {
	names := make([]string, len(h.entries))
	for i, e := range h.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of distinct names.
func (h Headers) Len() int { return len(h.entries) }

// Add returns a copy of h with value appended to name.
func (h Headers) Add(name, value string) Headers {
	out := h.clone()
	if i := out.index(name); i >= 0 {
		out.entries[i].values = append(out.entries[i].values, value)
		return out
	}
	out.entries = append(out.entries, headerEntry{name: name, values: []string{value}})
	return out
}

// Set returns a copy of h with name holding exactly values. The position of
// an existing name is kept.
func (h Headers) Set(name string, values ...string) Headers {
	out := h.clone()
	vals := append([]string(nil), values...)
	if i := out.index(name); i >= 0 {
		out.entries[i].values = vals
		return out
	}
	out.entries = append(out.entries, headerEntry{name: name, values: vals})
	return out
}

// Del returns a copy of h without name.
func (h Headers) Del(name string) Headers {
	i := h.index(name)
	if i < 0 {
		return h
	}
	out := h.clone()
	out.entries = append(out.entries[:i], out.entries[i+1:]...)
	return out
}

// ToHTTP converts to an http.Header.
func (h Headers) ToHTTP() http.Header {
	out := make(http.Header, len(h.entries))
	for _, e := range h.entries {
		for _, v := range e.values {
			out.Add(e.name, v)
		}
	}
	return out
}
