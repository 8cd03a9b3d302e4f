package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UpperCamelCase converts snake_case or single words to UpperCamelCase.
// Existing inner capitals are kept: "blogPost" -> "BlogPost".
func UpperCamelCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	c := cases.Title(language.English, cases.NoLower)
	s = c.String(s)
	return strings.ReplaceAll(s, " ", "")
}
