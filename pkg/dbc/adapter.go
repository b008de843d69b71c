package dbc

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	cdbc "go.einride.tech/can/pkg/dbc"

	"github.com/BIwashi/dbcsignal/pkg/attribute"
	"github.com/BIwashi/dbcsignal/pkg/bitfield"
)

// ParseFile parses a DBC file using the can-go (go.einride.tech/can) parser.
func ParseFile(filename string) (*Database, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read dbc file")
	}
	return Parse(filepath.Base(filename), data)
}

// Parse builds a Database from DBC source. References to undeclared messages, signals
// or nodes do not fail the parse; they are collected in Database.Warnings.
func Parse(name string, data []byte) (*Database, error) {
	parser := cdbc.NewParser(name, data)
	if err := parser.Parse(); err != nil {
		return nil, errors.Wrap(err, "parse dbc (can-go)")
	}

	b := &builder{
		db:        &Database{},
		attrKinds: make(map[string]*cdbc.AttributeDef),
	}
	defs := parser.Defs()
	b.collectDefinitions(defs)
	b.addMetadata(defs)
	b.db.index()

	return b.db, nil
}

type builder struct {
	db        *Database
	attrKinds map[string]*cdbc.AttributeDef
}

func (b *builder) warn(err error) {
	b.db.Warnings = append(b.db.Warnings, err)
}

/*
ref: https://github.com/einride/can-go/internal/generate/compile.go
*/
func (b *builder) collectDefinitions(defs []cdbc.Def) {
	for _, def := range defs {
		switch def := def.(type) {
		case *cdbc.VersionDef:
			b.db.Version = def.Version
		case *cdbc.MessageDef:
			if def.MessageID == cdbc.IndependentSignalsMessageID {
				continue // don't compile
			}
			b.db.Messages = append(b.db.Messages, newMessage(def))
		case *cdbc.NodesDef:
			for _, node := range def.NodeNames {
				b.db.Nodes = append(b.db.Nodes, &Node{Name: string(node)})
			}
		case *cdbc.AttributeDef:
			b.attrKinds[string(def.Name)] = def
		}
	}
}

func newMessage(def *cdbc.MessageDef) *Message {
	message := &Message{
		ID:         def.MessageID.ToCAN(),
		IsExtended: def.MessageID.IsExtended(),
		Name:       string(def.Name),
		Length:     int(def.Size),
		Sender:     string(def.Transmitter),
		Signals:    make([]*Signal, 0, len(def.Signals)),
	}

	for i, sd := range def.Signals {
		signal := &Signal{
			Name:           string(sd.Name),
			StartBit:       int(sd.StartBit),
			BitLength:      int(sd.Size),
			ByteOrder:      bitfield.Intel,
			Type:           UnsignedInt,
			Scale:          sd.Factor,
			Offset:         sd.Offset,
			Min:            sd.Minimum,
			Max:            sd.Maximum,
			Unit:           sd.Unit,
			IsMultiplexor:  sd.IsMultiplexerSwitch,
			IsMultiplexed:  sd.IsMultiplexed,
			MultiplexValue: int32(sd.MultiplexerSwitch),
		}
		// can-go: IsBigEndian == true means Motorola
		if sd.IsBigEndian {
			signal.ByteOrder = bitfield.Motorola
		}
		if sd.IsSigned {
			signal.Type = SignedInt
		}
		for _, r := range sd.Receivers {
			signal.Receivers = append(signal.Receivers, string(r))
		}
		message.Signals = append(message.Signals, signal)

		// The top level switch is the one that is not itself multiplexed.
		if sd.IsMultiplexerSwitch {
			cur, ok := message.At(message.Multiplexor)
			if !ok || (cur.IsMultiplexed && !sd.IsMultiplexed) {
				message.Multiplexor = RefAt(i)
			}
		}
	}
	return message
}

func (b *builder) addMetadata(defs []cdbc.Def) {
	byID := make(map[messageKey]*Message, len(b.db.Messages))
	for _, m := range b.db.Messages {
		byID[messageKey{m.ID, m.IsExtended}] = m
	}
	message := func(id cdbc.MessageID) (*Message, bool) {
		m, ok := byID[messageKey{id.ToCAN(), id.IsExtended()}]
		if !ok {
			b.warn(errors.Newf("no declared message: %d", uint32(id)))
		}
		return m, ok
	}
	signal := func(id cdbc.MessageID, name cdbc.Identifier) (*Signal, bool) {
		m, ok := message(id)
		if !ok {
			return nil, false
		}
		ref, ok := m.Signal(string(name))
		if !ok {
			b.warn(errors.Newf("no declared signal: %s.%s", m.Name, name))
			return nil, false
		}
		s, _ := m.At(ref)
		return s, true
	}
	node := func(name cdbc.Identifier) (*Node, bool) {
		for _, n := range b.db.Nodes {
			if n.Name == string(name) {
				return n, true
			}
		}
		b.warn(errors.Newf("no declared node: %s", name))
		return nil, false
	}

	for _, def := range defs {
		switch def := def.(type) {
		case *cdbc.SignalValueTypeDef:
			s, ok := signal(def.MessageID, def.SignalName)
			if !ok {
				continue
			}
			switch def.SignalValueType {
			case cdbc.SignalValueTypeInt:
			case cdbc.SignalValueTypeFloat32:
				if s.BitLength != 32 {
					b.warn(errors.Newf("incorrect float signal length: %s: %d", s.Name, s.BitLength))
				}
				s.Type = SingleFloat
			case cdbc.SignalValueTypeFloat64:
				if s.BitLength != 64 {
					b.warn(errors.Newf("incorrect double signal length: %s: %d", s.Name, s.BitLength))
				}
				s.Type = DoubleFloat
			default:
				b.warn(errors.Newf("unsupported signal value type: %v", def.SignalValueType))
			}
		case *cdbc.CommentDef:
			switch def.ObjectType {
			case cdbc.ObjectTypeMessage:
				if m, ok := message(def.MessageID); ok {
					m.Comment = def.Comment
				}
			case cdbc.ObjectTypeSignal:
				if s, ok := signal(def.MessageID, def.SignalName); ok {
					s.Comment = def.Comment
				}
			case cdbc.ObjectTypeNetworkNode:
				if n, ok := node(def.NodeName); ok {
					n.Comment = def.Comment
				}
			}
		case *cdbc.ValueDescriptionsDef:
			if def.ObjectType != cdbc.ObjectTypeSignal {
				continue // don't compile
			}
			s, ok := signal(def.MessageID, def.SignalName)
			if !ok {
				continue
			}
			for _, vd := range def.ValueDescriptions {
				s.Values = append(s.Values, ValueDescription{
					Value:       int64(vd.Value),
					Description: vd.Description,
				})
			}
		case *cdbc.AttributeValueForObjectDef:
			v := b.attributeValue(def)
			switch def.ObjectType {
			case cdbc.ObjectTypeMessage:
				if m, ok := message(def.MessageID); ok {
					m.Attributes.Set(v)
				}
			case cdbc.ObjectTypeSignal:
				if s, ok := signal(def.MessageID, def.SignalName); ok {
					s.Attributes.Set(v)
				}
			case cdbc.ObjectTypeNetworkNode:
				if n, ok := node(def.NodeName); ok {
					n.Attributes.Set(v)
				}
			case cdbc.ObjectTypeUnspecified:
				b.db.Attributes.Set(v)
			}
		}
	}
}

// attributeValue types a BA_ assignment using its BA_DEF_ declaration.
func (b *builder) attributeValue(def *cdbc.AttributeValueForObjectDef) attribute.Value {
	v := attribute.Value{
		Name:   string(def.AttributeName),
		Kind:   attribute.KindString,
		Int:    def.IntValue,
		Float:  def.FloatValue,
		String: def.StringValue,
	}
	if v.Int == 0 && v.Float != 0 {
		v.Int = int64(v.Float)
	}
	if v.Float == 0 && v.Int != 0 {
		v.Float = float64(v.Int)
	}

	decl, ok := b.attrKinds[v.Name]
	if !ok {
		b.warn(errors.Newf("no declared attribute: %s", v.Name))
		return v
	}
	switch decl.Type {
	case cdbc.AttributeValueTypeInt:
		v.Kind = attribute.KindInt
	case cdbc.AttributeValueTypeHex:
		v.Kind = attribute.KindHex
	case cdbc.AttributeValueTypeFloat:
		v.Kind = attribute.KindFloat
	case cdbc.AttributeValueTypeEnum:
		v.Kind = attribute.KindEnum
		if v.String == "" && v.Int >= 0 && int(v.Int) < len(decl.EnumValues) {
			v.String = decl.EnumValues[v.Int]
		}
	}
	return v
}
