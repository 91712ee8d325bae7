package serde

import "strings"

// EscapeString applies the protocol's `$`-escape convention (spec §4.4):
// any user string that itself starts with one or more `$` characters gets
// one additional `$` prepended, so `$foo` -> `$$foo`, `$$foo` -> `$$$foo`.
// This frees up the unescaped `$`-prefixed shape for the tag objects that
// carry BigInt and binary values ({"$i": ...}, {"$b": ...}).
func EscapeString(s string) string {
	if strings.HasPrefix(s, "$") {
		return "$" + s
	}
	return s
}

// UnescapeString reverses EscapeString: a string starting with `$` has
// exactly one leading `$` stripped. Strings that don't start with `$` pass
// through unchanged — this is the involutive partner required by spec
// invariant 7.
func UnescapeString(s string) string {
	if strings.HasPrefix(s, "$") {
		return s[1:]
	}
	return s
}
