package params

// Derived caches a value computed from a revision-counted source. The
// cached value is reused only while the source revision it was built
// from is still current; any other revision forces a rebuild.
type Derived[T any] struct {
	value T
	rev   uint64
	valid bool
}

// Get returns the cached value if it was built at revision rev,
// otherwise rebuilds it and records the revision.
func (d *Derived[T]) Get(rev uint64, rebuild func() (T, error)) (T, error) {
	if d.valid && d.rev == rev {
		return d.value, nil
	}
	value, err := rebuild()
	if err != nil {
		var zero T
		return zero, err
	}
	d.value = value
	d.rev = rev
	d.valid = true
	return d.value, nil
}

// Invalidate drops the cached value regardless of revision.
func (d *Derived[T]) Invalidate() {
	d.valid = false
}
