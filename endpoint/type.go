package endpoint

import (
	"reflect"
	"strings"
)

// Kind identifies the shape of a declared return type.
type Kind int

const (
	// KindValue is a plain decoded value (struct, map, string, ...).
	KindValue Kind = iota

	// KindList is a decoded slice of Elem.
	KindList

	// KindVoid discards the response body.
	KindVoid

	// KindEntity is the full response: status, headers and a decoded Elem body.
	KindEntity

	// KindHeaders is a read-only view of the response headers.
	KindHeaders

	// KindStatus is the response status line.
	KindStatus

	// KindOptional wraps Elem, empty when the body is absent.
	KindOptional

	// KindFuture delivers Elem asynchronously.
	KindFuture

	// KindStream is a cold stream emitting Elem.
	KindStream

	// KindEither carries either the failure (left) or Elem (right).
	KindEither

	// KindCall is an unexecuted call producing Elem.
	KindCall
)

var kindNames = map[Kind]string{
	KindValue:    "Value",
	KindList:     "List",
	KindVoid:     "Void",
	KindEntity:   "Entity",
	KindHeaders:  "Headers",
	KindStatus:   "Status",
	KindOptional: "Optional",
	KindFuture:   "Future",
	KindStream:   "Stream",
	KindEither:   "Either",
	KindCall:     "Call",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

var anyType = reflect.TypeFor[any]()

// Type describes the shape a caller expects back from an endpoint.
//
// Types nest: a Future of an Optional of a User is
//
//	endpoint.FutureOf(endpoint.OptionalOf(endpoint.Of[User]()))
//
// Type values are immutable and safe to share.
type Type struct {
	kind   Kind
	elem   *Type
	goType reflect.Type
}

// Of returns the value type for T.
func Of[T any]() Type {
	return TypeOf(reflect.TypeFor[T]())
}

// TypeOf returns the value type for t. A nil t describes an untyped value.
func TypeOf(t reflect.Type) Type {
	if t == nil {
		t = anyType
	}
	return Type{kind: KindValue, goType: t}
}

// Void returns the type of an endpoint whose body is discarded.
func Void() Type { return Type{kind: KindVoid} }

// HeadersType returns the type of an endpoint returning only response headers.
func HeadersType() Type { return Type{kind: KindHeaders} }

// StatusType returns the type of an endpoint returning only the status line.
func StatusType() Type { return Type{kind: KindStatus} }

// ListOf returns a slice type of elem.
func ListOf(elem Type) Type { return wrap(KindList, elem) }

// EntityOf returns the full-response type with an elem body.
func EntityOf(elem Type) Type { return wrap(KindEntity, elem) }

// OptionalOf returns an optional elem.
func OptionalOf(elem Type) Type { return wrap(KindOptional, elem) }

// FutureOf returns an asynchronously delivered elem.
func FutureOf(elem Type) Type { return wrap(KindFuture, elem) }

// StreamOf returns a stream emitting elem.
func StreamOf(elem Type) Type { return wrap(KindStream, elem) }

// EitherOf returns a two-branch result: the call failure or elem.
func EitherOf(elem Type) Type { return wrap(KindEither, elem) }

// CallOf returns a deferred call producing elem.
func CallOf(elem Type) Type { return wrap(KindCall, elem) }

func wrap(kind Kind, elem Type) Type {
	e := elem
	return Type{kind: kind, elem: &e}
}

// Kind returns the outermost kind.
func (t Type) Kind() Kind { return t.kind }

// Elem returns the wrapped type. Types without an element return an untyped value.
func (t Type) Elem() Type {
	if t.elem == nil {
		return TypeOf(nil)
	}
	return *t.elem
}

// HasElem reports whether the type wraps another type.
func (t Type) HasElem() bool { return t.elem != nil }

// GoType returns the Go type a body is decoded into for this shape.
// Value and List types map to their concrete Go type; every other kind decodes
// into an untyped value.
func (t Type) GoType() reflect.Type {
	switch t.kind {
	case KindValue:
		if t.goType == nil {
			return anyType
		}
		return t.goType
	case KindList:
		return reflect.SliceOf(t.Elem().GoType())
	default:
		return anyType
	}
}

// Is reports whether the outermost kind is one of kinds.
func (t Type) Is(kinds ...Kind) bool {
	for _, k := range kinds {
		if t.kind == k {
			return true
		}
	}
	return false
}

// Equal reports whether t and other describe the same shape.
func (t Type) Equal(other Type) bool {
	if t.kind != other.kind {
		return false
	}
	if t.kind == KindValue {
		return t.GoType() == other.GoType()
	}
	if (t.elem == nil) != (other.elem == nil) {
		return false
	}
	if t.elem == nil {
		return true
	}
	return t.elem.Equal(*other.elem)
}

// String renders the shape, e.g. "Future[Optional[main.User]]".
func (t Type) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Type) write(b *strings.Builder) {
	if t.kind == KindValue {
		b.WriteString(t.GoType().String())
		return
	}
	b.WriteString(t.kind.String())
	if t.elem != nil {
		b.WriteByte('[')
		t.elem.write(b)
		b.WriteByte(']')
	}
}
