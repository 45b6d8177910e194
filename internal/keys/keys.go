// Package keys implements instance-name key prefixing and glob pattern
// compilation for the cache tiers.
package keys

import (
	"regexp"
	"strings"
)

// Separator joins the instance name and the user key.
const Separator = "::"

// Namer prefixes user keys with the owning instance's name. Global keys
// bypass the prefix and are shared across instances.
type Namer struct {
	name string
}

func NewNamer(name string) Namer { return Namer{name: name} }

// Real returns the namespaced storage key for k.
func (n Namer) Real(k string) string { return n.name + Separator + k }

// Global returns k unchanged.
func (Namer) Global(k string) string { return k }

// Key applies or bypasses the instance prefix.
func (n Namer) Key(k string, global bool) string {
	if global {
		return n.Global(k)
	}
	return n.Real(k)
}

// CompilePattern converts a glob into an anchored regexp. Only the
// metacharacters '*' (any run) and '?' (at most one character) are
// translated; character classes are not supported and other characters are
// matched per regexp rules.
func CompilePattern(p string) (*regexp.Regexp, error) {
	r := strings.ReplaceAll(p, "*", "(.*)")
	r = strings.ReplaceAll(r, "?", "(.?)")
	return regexp.Compile("^" + r + "$")
}
