package scope

import "strings"

// Attrs is the minimal view of an entry's attributes a Filter needs:
// attribute name (case-insensitive) to its values.
type Attrs map[string][]string

// Has reports whether the named attribute is present with at least one
// value.
func (a Attrs) Has(name string) bool {
	vs, ok := a[strings.ToLower(name)]
	return ok && len(vs) > 0
}

// Equals reports whether the named attribute has value among its values
// (case-insensitive, matching typical directory equality matching rules
// for the string-valued attributes this provider deals with).
func (a Attrs) Equals(name, value string) bool {
	for _, v := range a[strings.ToLower(name)] {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// Filter is a search filter tree. The zero value of each concrete type is
// not meaningful; construct via the helper functions below.
type Filter interface {
	Matches(a Attrs) bool
	String() string
}

type presentFilter struct{ attr string }

// Present returns a filter matching any entry with at least one value for
// attr, e.g. "(objectClass=*)".
func Present(attr string) Filter { return presentFilter{attr} }

func (f presentFilter) Matches(a Attrs) bool { return a.Has(f.attr) }
func (f presentFilter) String() string       { return "(" + f.attr + "=*)" }

type equalityFilter struct{ attr, value string }

// Equality returns a filter matching entries where attr has value among
// its values, compared case-insensitively (see Attrs.Equals).
func Equality(attr, value string) Filter { return equalityFilter{attr, value} }

func (f equalityFilter) Matches(a Attrs) bool { return a.Equals(f.attr, f.value) }
func (f equalityFilter) String() string       { return "(" + f.attr + "=" + f.value + ")" }

type andFilter struct{ terms []Filter }

// And returns a filter matching entries that satisfy every term.
func And(terms ...Filter) Filter { return andFilter{terms} }

func (f andFilter) Matches(a Attrs) bool {
	for _, t := range f.terms {
		if !t.Matches(a) {
			return false
		}
	}
	return true
}

func (f andFilter) String() string {
	var b strings.Builder
	b.WriteString("(&")
	for _, t := range f.terms {
		b.WriteString(t.String())
	}
	b.WriteString(")")
	return b.String()
}

type orFilter struct{ terms []Filter }

// Or returns a filter matching entries that satisfy at least one term.
func Or(terms ...Filter) Filter { return orFilter{terms} }

func (f orFilter) Matches(a Attrs) bool {
	for _, t := range f.terms {
		if t.Matches(a) {
			return true
		}
	}
	return false
}

func (f orFilter) String() string {
	var b strings.Builder
	b.WriteString("(|")
	for _, t := range f.terms {
		b.WriteString(t.String())
	}
	b.WriteString(")")
	return b.String()
}

type notFilter struct{ term Filter }

// Not returns a filter matching entries that do not satisfy term.
func Not(term Filter) Filter { return notFilter{term} }

func (f notFilter) Matches(a Attrs) bool { return !f.term.Matches(a) }
func (f notFilter) String() string       { return "(!" + f.term.String() + ")" }
