package flowcache

import "encoding/json"

// Optional represents a value that may be absent.
//
// Optional is a two-variant wrapper: [Some] carries a value, [None] carries
// nothing. It is used for every emission from the store so that "no value
// currently known" is explicit data rather than a nil reference or an error.
//
// The zero value of Optional is None.
type Optional[T any] struct {
	value   T
	present bool
}

// Some returns an Optional carrying the given value.
func Some[T any](value T) Optional[T] {
	return Optional[T]{value: value, present: true}
}

// None returns an empty Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// IsPresent reports whether the Optional carries a value.
func (o Optional[T]) IsPresent() bool {
	return o.present
}

// Get returns the carried value and whether it is present.
// When absent, the returned value is the zero value of T.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present
}

// OrElse returns the carried value, or def when absent.
func (o Optional[T]) OrElse(def T) T {
	if o.present {
		return o.value
	}
	return def
}

// MarshalJSON implements json.Marshaler.
// A present value marshals as the value itself; absence marshals as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON implements json.Unmarshaler.
// JSON null unmarshals to None; anything else unmarshals into the value.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
