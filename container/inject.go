package container

import (
	"reflect"
	"strings"

	apperrors "github.com/leeforge/strata/errors"
)

// InjectTag is the struct tag naming the entry a field is filled from:
//
//	Store *Store `inject:"service:store"`
//	Cache Cache  `inject:"service:cache,loose"`
const InjectTag = "inject"

// Inject fills the tagged fields of target, which must be a pointer to a
// struct. Fields that already hold a non-zero value are left alone.
func (c *Container) Inject(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return apperrors.NewAssertion("inject target must be a non-nil struct pointer, got %T", target)
	}
	return c.injectStruct(v.Elem())
}

// inject fills the tagged fields of a built entry. With record set, value
// is injected at most once per container lifetime (until the next
// Teardown); per-lookup instances pass false and leave no trace. Values
// without identity or that are not struct pointers are ignored.
func (c *Container) inject(value any, record bool) error {
	if !injectable(value) {
		return nil
	}
	if !record {
		return c.injectStruct(reflect.ValueOf(value).Elem())
	}

	s := c.s
	s.mu.Lock()
	if _, done := s.injected[value]; done {
		s.mu.Unlock()
		return nil
	}
	s.injected[value] = struct{}{}
	s.mu.Unlock()

	if err := c.injectStruct(reflect.ValueOf(value).Elem()); err != nil {
		s.mu.Lock()
		delete(s.injected, value)
		s.mu.Unlock()
		return err
	}
	return nil
}

// injected reports whether value needs no further injection.
func (c *Container) injected(value any) bool {
	if !injectable(value) {
		return true
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	_, done := c.s.injected[value]
	return done
}

func injectable(value any) bool {
	if !hasIdentity(value) {
		return false
	}
	v := reflect.ValueOf(value)
	return v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct
}

func (c *Container) injectStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)

		tag, tagged := field.Tag.Lookup(InjectTag)
		if !tagged {
			if field.Anonymous && field.Type.Kind() == reflect.Struct && field.IsExported() {
				if err := c.injectStruct(fv); err != nil {
					return err
				}
			}
			continue
		}

		spec, loose, err := parseInjectTag(tag)
		if err != nil {
			return apperrors.NewAssertion("field %s.%s: %v", t.Name(), field.Name, err)
		}
		if !field.IsExported() {
			return apperrors.NewAssertion("field %s.%s is tagged for injection but unexported", t.Name(), field.Name)
		}
		if !fv.IsZero() {
			continue
		}

		var lookupOpts []LookupOption
		if loose {
			lookupOpts = append(lookupOpts, Loose())
		}
		dep, err := c.LookupSpecifier(spec, lookupOpts...)
		if err != nil {
			return err
		}
		if dep == nil {
			continue
		}

		dv := reflect.ValueOf(dep)
		if !dv.Type().AssignableTo(field.Type) {
			return apperrors.NewAssertion("field %s.%s (%s) cannot hold %s (%T)",
				t.Name(), field.Name, field.Type, spec, dep)
		}
		fv.Set(dv)
	}
	return nil
}

func parseInjectTag(tag string) (Specifier, bool, error) {
	raw, flags, _ := strings.Cut(tag, ",")
	spec, err := Parse(strings.TrimSpace(raw))
	if err != nil {
		return Specifier{}, false, err
	}
	loose := false
	for _, flag := range strings.Split(flags, ",") {
		if strings.TrimSpace(flag) == "loose" {
			loose = true
		}
	}
	return spec, loose, nil
}
