// Package scope implements the scope tests used to decide whether a
// candidate DN falls within a persistent search's base+scope.
package scope

import "strings"

// Scope is one of the four LDAP search scopes.
type Scope int

const (
	Base Scope = iota
	OneLevel
	Subtree
	Subordinate
)

// Matches reports whether ndn (a normalized DN) falls within scope of
// base (also normalized). All comparisons are on normalized DN strings;
// this package never touches the store.
func Matches(ndn, base string, s Scope) bool {
	switch s {
	case Base:
		return ndn == base
	case OneLevel:
		return parentOf(ndn) == base
	case Subtree:
		return ndn == base || isDescendant(ndn, base)
	case Subordinate:
		return isDescendant(ndn, base)
	default:
		return false
	}
}

// isDescendant reports whether ndn is a strict descendant of base, i.e.
// base is a proper suffix of ndn separated on an RDN boundary.
func isDescendant(ndn, base string) bool {
	if !strings.HasSuffix(ndn, base) || ndn == base {
		return false
	}
	prefixLen := len(ndn) - len(base)
	return ndn[prefixLen-1] == ','
}

// parentOf returns the DN of ndn's immediate parent, or "" if ndn has no
// parent (it is a single RDN). This assumes RDNs are comma-separated and
// do not themselves contain unescaped commas — the normalized form the
// entry store is expected to produce.
func parentOf(ndn string) string {
	idx := strings.Index(ndn, ",")
	if idx < 0 {
		return ""
	}
	return ndn[idx+1:]
}
