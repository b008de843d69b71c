// Package attribute holds DBC attribute values (BA_) attached to the network, nodes,
// messages and signals. All of them share the same List type.
package attribute

import (
	"strconv"
	"strings"
)

// Kind is the declared type of an attribute (BA_DEF_).
type Kind uint8

const (
	KindInt Kind = iota
	KindHex
	KindFloat
	KindString
	KindEnum
)

// Value is a single attribute assignment.
type Value struct {
	Name string
	Kind Kind
	// Int holds INT, HEX and the index of ENUM values.
	Int   int64
	Float float64
	// String holds STRING values and the resolved label of ENUM values.
	String string
}

// Text renders the value the way it appears in a DBC file.
func (v *Value) Text() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindHex:
		return "0x" + strconv.FormatInt(v.Int, 16)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.String
	}
}

// List is an ordered set of attribute values.
type List []Value

// ByName returns the first value whose name matches, ignoring case.
func (l List) ByName(name string) (*Value, bool) {
	for i := range l {
		if strings.EqualFold(l[i].Name, name) {
			return &l[i], true
		}
	}
	return nil, false
}

// ByIndex returns the value at i.
func (l List) ByIndex(i int) (*Value, bool) {
	if i < 0 || i >= len(l) {
		return nil, false
	}
	return &l[i], true
}

// Set replaces the value with the same name or appends it.
func (l *List) Set(v Value) {
	if cur, ok := l.ByName(v.Name); ok {
		*cur = v
		return
	}
	*l = append(*l, v)
}
