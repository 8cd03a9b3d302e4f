package container

import (
	apperrors "github.com/leeforge/strata/errors"
)

// Resolve looks up spec and asserts the result to T. A loose miss returns
// the zero T and no error.
func Resolve[T any](c *Container, spec string, opts ...LookupOption) (T, error) {
	var zero T
	v, err := c.Lookup(spec, opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, apperrors.NewAssertion("%s resolved to %T, want %T", spec, v, zero)
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](c *Container, spec string) T {
	v, err := Resolve[T](c, spec)
	if err != nil {
		panic(err)
	}
	return v
}
