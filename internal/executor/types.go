package executor

import "github.com/hanpama/protogql/internal/language"

func isNonNull(t *language.Type) bool { return t != nil && t.NonNull }

func isList(t *language.Type) bool { return t != nil && t.Elem != nil }

// nullable strips the outer Non-Null wrapper.
func nullable(t *language.Type) *language.Type {
	if !isNonNull(t) {
		return t
	}
	c := *t
	c.NonNull = false
	return &c
}
