package catalog

import (
	_ "embed"
)

//go:embed builtin.json
var builtinJSON []byte

// Builtin returns the built-in personal-assistant catalog used by the demo
// route command, the eval runner and the tests.
func Builtin() *Catalog {
	c, err := Parse(builtinJSON)
	if err != nil {
		// The embedded file is validated by tests; a decode failure here
		// means a broken build.
		panic("catalog: embedded builtin catalog is invalid: " + err.Error())
	}
	return c
}
