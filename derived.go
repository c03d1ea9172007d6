package lww

// Derived is a registered function computing a value from the live entries.
// The handle, not the function, identifies the cached result, so register
// once and reuse the handle.
type Derived[V, R any] struct {
	fn func(map[string]Entry[V]) R
}

// NewDerived registers fn. fn must be pure and must not modify its argument.
func NewDerived[V, R any](fn func(map[string]Entry[V]) R) *Derived[V, R] {
	return &Derived[V, R]{fn}
}

// Get returns d's value for c, computing it only if c has changed since it
// was last computed (or the result was evicted).
func Get[V, R any](c *Collection[V], d *Derived[V, R]) R {
	if v, ok := c.derived.Get(d); ok {
		r, _ := v.(R)
		return r
	}
	v := d.fn(c.entries)
	c.derived.Add(d, v)
	return v
}
