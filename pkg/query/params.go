package query

import (
	"net/url"
	"strings"
)

// Params is an insertion-ordered parameter set.
// The zero value is an empty set ready to use.
type Params struct {
	keys   []string
	values map[string]Value
}

// New returns a parameter set holding the given pairs in order.
// pairs must alternate name (string) and Value; it panics otherwise.
func New(pairs ...any) *Params {
	if len(pairs)%2 != 0 {
		panic("query: New called with an odd number of arguments")
	}
	p := &Params{}
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic("query: parameter name must be a string")
		}
		value, ok := pairs[i+1].(Value)
		if !ok {
			panic("query: parameter " + name + " must be a query.Value")
		}
		p.Set(name, value)
	}
	return p
}

// Set assigns value to name. An existing name keeps its position.
func (p *Params) Set(name string, value Value) {
	if p.values == nil {
		p.values = make(map[string]Value)
	}
	if _, exists := p.values[name]; !exists {
		p.keys = append(p.keys, name)
	}
	p.values[name] = value
}

// Get returns the value for name and whether it was set.
func (p *Params) Get(name string) (Value, bool) {
	if p == nil || p.values == nil {
		return Value{}, false
	}
	v, ok := p.values[name]
	return v, ok
}

// Del removes name from the set.
func (p *Params) Del(name string) {
	if p == nil || p.values == nil {
		return
	}
	if _, ok := p.values[name]; !ok {
		return
	}
	delete(p.values, name)
	for i, k := range p.keys {
		if k == name {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries, null entries included.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the parameter names in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}

// Clone returns an independent copy of p. Cloning nil yields an empty set.
func (p *Params) Clone() *Params {
	c := &Params{}
	if p == nil {
		return c
	}
	for _, k := range p.keys {
		c.Set(k, p.values[k])
	}
	return c
}

// With returns a copy of p with name set to value.
func (p *Params) With(name string, value Value) *Params {
	c := p.Clone()
	c.Set(name, value)
	return c
}

// Encode returns the URL query encoding of p. See Encode.
func (p *Params) Encode() string {
	return Encode(p)
}

// Encode serializes p into a query string without a leading "?".
// Entries are emitted in insertion order and null entries are skipped.
func Encode(p *Params) string {
	if p.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range p.keys {
		text, ok := p.values[k].Text()
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(text))
	}
	return b.String()
}
