package dbc

import (
	"sort"
	"strings"

	"github.com/BIwashi/dbcsignal/pkg/attribute"
	"github.com/BIwashi/dbcsignal/pkg/bitfield"
)

// ValueType is the numeric interpretation of a signal's raw bits.
type ValueType uint8

const (
	// UnsignedInt is a plain unsigned integer.
	UnsignedInt ValueType = iota
	// SignedInt is a two's complement integer.
	SignedInt
	// SingleFloat is an IEEE 754 binary32 value.
	SingleFloat
	// DoubleFloat is an IEEE 754 binary64 value read from the first eight bytes.
	DoubleFloat
	// String is raw bytes interpreted as text.
	String
)

func (t ValueType) String() string {
	switch t {
	case UnsignedInt:
		return "UNSIGNED_INT"
	case SignedInt:
		return "SIGNED_INT"
	case SingleFloat:
		return "SINGLE_FLOAT"
	case DoubleFloat:
		return "DOUBLE_FLOAT"
	case String:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// SignalRef is a handle to a signal inside its message's Signals slice.
// The zero value refers to no signal.
type SignalRef int

// NoSignal is the zero SignalRef.
const NoSignal SignalRef = 0

// RefAt returns the handle of Signals[i].
func RefAt(i int) SignalRef {
	return SignalRef(i + 1)
}

// Index returns the slice index and whether the handle refers to a signal at all.
func (r SignalRef) Index() (int, bool) {
	return int(r) - 1, r > 0
}

// ValueDescription is one VAL_ entry.
type ValueDescription struct {
	Value       int64
	Description string
}

// Signal represents a signal within a CAN message
type Signal struct {
	Name      string
	StartBit  int
	BitLength int
	ByteOrder bitfield.ByteOrder
	Type      ValueType
	Scale     float64
	Offset    float64
	Min       float64
	Max       float64
	Unit      string
	Receivers []string
	Comment   string
	Values    []ValueDescription

	// IsMultiplexor marks a multiplexer switch ("M").
	IsMultiplexor bool
	// IsMultiplexed marks a signal that is only present when its multiplexor
	// decodes to MultiplexValue ("m<value>").
	IsMultiplexed  bool
	MultiplexValue int32
	// Multiplexor overrides the message multiplexor for nested multiplexing.
	Multiplexor SignalRef

	Attributes attribute.List
}

// Describe returns the value table entry for the truncated value.
func (s *Signal) Describe(v float64) (string, bool) {
	key := int64(v)
	for _, vd := range s.Values {
		if vd.Value == key {
			return vd.Description, true
		}
	}
	return "", false
}

// InRange reports whether v lies within [Min, Max]. Min and Max both zero means unbounded.
func (s *Signal) InRange(v float64) bool {
	if s.Min == 0 && s.Max == 0 {
		return true
	}
	const epsilon = 1e-9
	return v >= s.Min-epsilon && v <= s.Max+epsilon
}

// Message represents a CAN message from DBC file
type Message struct {
	ID         uint32
	IsExtended bool
	Name       string
	Length     int
	Sender     string
	Comment    string
	Signals    []*Signal
	// Multiplexor is the message level multiplexer switch, NoSignal if there is none.
	Multiplexor SignalRef
	Attributes  attribute.List
}

// Signal returns the handle of the named signal.
func (m *Message) Signal(name string) (SignalRef, bool) {
	for i, s := range m.Signals {
		if s.Name == name {
			return RefAt(i), true
		}
	}
	return NoSignal, false
}

// At resolves a handle.
func (m *Message) At(ref SignalRef) (*Signal, bool) {
	i, ok := ref.Index()
	if !ok || i >= len(m.Signals) {
		return nil, false
	}
	return m.Signals[i], true
}

// Node is a network node (BU_).
type Node struct {
	Name       string
	Comment    string
	Attributes attribute.List
}

type messageKey struct {
	id       uint32
	extended bool
}

// Database is an immutable set of definitions. Build it with NewDatabase or Parse and do
// not modify it afterwards; publish a new Database instead.
type Database struct {
	Version    string
	Messages   []*Message
	Nodes      []*Node
	Attributes attribute.List
	// Warnings lists definitions that referenced unknown messages, signals or nodes.
	Warnings []error

	byID map[messageKey]*Message
}

// NewDatabase sorts and indexes the given definitions.
func NewDatabase(messages []*Message, nodes []*Node) *Database {
	d := &Database{
		Messages: messages,
		Nodes:    nodes,
	}
	d.index()
	return d
}

func (d *Database) index() {
	sort.SliceStable(d.Nodes, func(i, j int) bool {
		return d.Nodes[i].Name < d.Nodes[j].Name
	})
	sort.SliceStable(d.Messages, func(i, j int) bool {
		return d.Messages[i].ID < d.Messages[j].ID
	})
	d.byID = make(map[messageKey]*Message, len(d.Messages))
	for _, m := range d.Messages {
		d.byID[messageKey{m.ID, m.IsExtended}] = m
	}
}

// Message returns a message by ID
func (d *Database) Message(id uint32, extended bool) (*Message, bool) {
	msg, ok := d.byID[messageKey{id, extended}]
	return msg, ok
}

// MessageByName returns a message by name
func (d *Database) MessageByName(name string) (*Message, bool) {
	for _, msg := range d.Messages {
		if msg.Name == name {
			return msg, true
		}
	}
	return nil, false
}

// Node returns a node by name, ignoring case.
func (d *Database) Node(name string) (*Node, bool) {
	for _, n := range d.Nodes {
		if strings.EqualFold(n.Name, name) {
			return n, true
		}
	}
	return nil, false
}
