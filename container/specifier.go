package container

import (
	"strings"

	apperrors "github.com/leeforge/strata/errors"
)

// Specifier identifies a resolvable entry as "type:name", e.g. "model:post"
// or "orm-adapter:application".
type Specifier struct {
	Type string
	Name string
}

// NewSpecifier builds a Specifier from its parts.
func NewSpecifier(typ, name string) Specifier {
	return Specifier{Type: typ, Name: name}
}

// Parse splits "type:name" at the first colon. Both parts must be non-empty.
func Parse(text string) (Specifier, error) {
	typ, name, ok := strings.Cut(text, ":")
	if !ok || typ == "" || name == "" {
		return Specifier{}, apperrors.NewAssertion("invalid specifier %q: expected \"type:name\"", text)
	}
	return Specifier{Type: typ, Name: name}, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(text string) Specifier {
	spec, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return spec
}

func (s Specifier) String() string {
	return s.Type + ":" + s.Name
}

// IsZero reports whether s is the empty Specifier.
func (s Specifier) IsZero() bool {
	return s.Type == "" && s.Name == ""
}
