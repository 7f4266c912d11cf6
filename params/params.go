// Package params implements the ordered, case-insensitive name=value
// parameter lists used by SIP header fields and URIs (RFC 3261 S. 25.1).
package params

import (
	"strconv"
	"strings"
)

// entry holds one parameter slot. hasValue distinguishes a bare flag
// parameter (e.g. ";lr") from one with an explicit, possibly empty, value
// (e.g. ";lr=").
type entry struct {
	name     string
	value    string
	hasValue bool
}

// Params is an ordered multimap of parameter name to value. Names compare
// case-insensitively; insertion order is preserved for rendering. A single
// name may carry at most one value — re-setting a name overwrites it in
// place rather than appending a duplicate.
type Params struct {
	entries []entry
	index   map[string]int // lower(name) -> index into entries
}

// New returns an empty parameter list.
func New() *Params {
	return &Params{index: make(map[string]int)}
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	p2 := &Params{
		entries: append([]entry(nil), p.entries...),
		index:   make(map[string]int, len(p.index)),
	}
	for k, v := range p.index {
		p2.index[k] = v
	}
	return p2
}

func lower(s string) string { return strings.ToLower(s) }

// Set assigns name=value, preserving the original first-seen position.
func (p *Params) Set(name, value string) {
	p.set(name, value, true)
}

// SetFlag assigns a bare parameter with no value, e.g. ";lr".
func (p *Params) SetFlag(name string) {
	p.set(name, "", false)
}

func (p *Params) set(name, value string, hasValue bool) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	k := lower(name)
	if i, ok := p.index[k]; ok {
		p.entries[i] = entry{name: name, value: value, hasValue: hasValue}
		return
	}
	p.index[k] = len(p.entries)
	p.entries = append(p.entries, entry{name: name, value: value, hasValue: hasValue})
}

// Get returns the value for name and whether the parameter is present at
// all (with or without a value).
func (p *Params) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	i, ok := p.index[lower(name)]
	if !ok {
		return "", false
	}
	return p.entries[i].value, true
}

// HasValue reports whether name is present AND carries an explicit value,
// distinguishing ";lr" (false) from ";lr=" (true, value "").
func (p *Params) HasValue(name string) bool {
	if p == nil {
		return false
	}
	i, ok := p.index[lower(name)]
	return ok && p.entries[i].hasValue
}

// Has reports whether the parameter is present at all.
func (p *Params) Has(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.index[lower(name)]
	return ok
}

// Remove deletes a parameter if present.
func (p *Params) Remove(name string) {
	if p == nil {
		return
	}
	k := lower(name)
	i, ok := p.index[k]
	if !ok {
		return
	}
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	delete(p.index, k)
	for j := i; j < len(p.entries); j++ {
		p.index[lower(p.entries[j].name)] = j
	}
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Names returns parameter names in insertion order.
func (p *Params) Names() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.name
	}
	return out
}

// Equal compares two parameter lists per RFC 3261 S. 19.1.4: names and
// values are compared case-insensitively. Values are stored unquoted,
// so a value that arrived as a quoted-string is compared
// case-insensitively too.
func (p *Params) Equal(other *Params) bool {
	if p.Len() != other.Len() {
		return false
	}
	for _, e := range p.entries {
		v, ok := other.Get(e.name)
		if !ok || !strings.EqualFold(v, e.value) {
			return false
		}
	}
	return true
}

// String renders the parameter list with a leading ';' before each entry,
// quoting values that contain whitespace or any other character outside
// letters, digits and -.!%*_+`'~.
func (p *Params) String() string {
	return p.render(';')
}

func (p *Params) render(sep byte) string {
	if p.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range p.entries {
		b.WriteByte(sep)
		b.WriteString(e.name)
		if e.hasValue {
			b.WriteByte('=')
			if needsQuoting(e.value) {
				b.WriteString(strconv.Quote(e.value))
			} else {
				b.WriteString(e.value)
			}
		}
	}
	return b.String()
}

func needsQuoting(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		switch c := v[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.ContainsRune("-.!%*_+`'~", rune(c)):
		default:
			return true
		}
	}
	return false
}
