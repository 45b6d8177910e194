package tiercache

// Optional carries either a present value or an absence marker. Getters
// return Optional instead of a nil value with a side-channel flag: a cache
// miss and a cached zero value are different answers.
type Optional[T any] struct {
	value   T
	present bool
}

// Present wraps v in a present Optional.
func Present[T any](v T) Optional[T] { return Optional[T]{value: v, present: true} }

// Absent returns the empty Optional.
func Absent[T any]() Optional[T] { return Optional[T]{} }

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.present }

// IsPresent reports whether a value is present.
func (o Optional[T]) IsPresent() bool { return o.present }

// OrElse returns the value when present, def otherwise.
func (o Optional[T]) OrElse(def T) T {
	if o.present {
		return o.value
	}
	return def
}
