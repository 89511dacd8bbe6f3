package converter

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/tuvok/tuvok/quantize"
	"github.com/tuvok/tuvok/tuvok"
)

// RangeInfo is the value range discovered for a raw volume along with the volume
// description it was computed for.  It is immutable once computed.
type RangeInfo struct {
	Domain     tuvok.Vec3
	Aspect     [3]float64
	Type       tuvok.DataType
	Components uint
	Range      quantize.Range
}

// ComponentSize returns the bit width of one component.
func (ri RangeInfo) ComponentSize() uint {
	return ri.Type.BitWidth()
}

// RangeType returns 'u', 'i' or 'f' for unsigned, signed and float ranges.
func (ri RangeInfo) RangeType() byte {
	switch ri.Range.Kind {
	case quantize.Signed:
		return 'i'
	case quantize.Float:
		return 'f'
	default:
		return 'u'
	}
}

func (ri RangeInfo) String() string {
	return fmt.Sprintf("%s %s x%d, range %c%s", ri.Domain, ri.Type, ri.Components, ri.RangeType(), ri.Range)
}

// MarshalMsg appends the msgpack encoding of ri to b.  The range is an array of
// its type letter followed by min and max in that type.
func (ri RangeInfo) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 5)
	b = msgp.AppendString(b, "domain")
	b = msgp.AppendArrayHeader(b, 3)
	for _, v := range ri.Domain {
		b = msgp.AppendUint64(b, v)
	}
	b = msgp.AppendString(b, "aspect")
	b = msgp.AppendArrayHeader(b, 3)
	for _, v := range ri.Aspect {
		b = msgp.AppendFloat64(b, v)
	}
	b = msgp.AppendString(b, "type")
	b = msgp.AppendString(b, ri.Type.String())
	b = msgp.AppendString(b, "components")
	b = msgp.AppendUint(b, ri.Components)
	b = msgp.AppendString(b, "range")
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendByte(b, ri.RangeType())
	switch ri.Range.Kind {
	case quantize.Signed:
		b = msgp.AppendInt64(b, ri.Range.IMin)
		b = msgp.AppendInt64(b, ri.Range.IMax)
	case quantize.Float:
		b = msgp.AppendFloat64(b, ri.Range.FMin)
		b = msgp.AppendFloat64(b, ri.Range.FMax)
	default:
		b = msgp.AppendUint64(b, ri.Range.UMin)
		b = msgp.AppendUint64(b, ri.Range.UMax)
	}
	return b, nil
}

func readRange(b []byte) (r quantize.Range, o []byte, err error) {
	var sz uint32
	if sz, o, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return
	}
	if sz != 3 {
		err = fmt.Errorf("expected range of 3 entries, got %d", sz)
		return
	}
	var kind byte
	if kind, o, err = msgp.ReadByteBytes(o); err != nil {
		return
	}
	switch kind {
	case 'u':
		r.Kind = quantize.Unsigned
		if r.UMin, o, err = msgp.ReadUint64Bytes(o); err == nil {
			r.UMax, o, err = msgp.ReadUint64Bytes(o)
		}
	case 'i':
		r.Kind = quantize.Signed
		if r.IMin, o, err = msgp.ReadInt64Bytes(o); err == nil {
			r.IMax, o, err = msgp.ReadInt64Bytes(o)
		}
	case 'f':
		r.Kind = quantize.Float
		if r.FMin, o, err = msgp.ReadFloat64Bytes(o); err == nil {
			r.FMax, o, err = msgp.ReadFloat64Bytes(o)
		}
	default:
		err = fmt.Errorf("unknown range type %q", kind)
	}
	return
}

// UnmarshalMsg decodes ri from b, returning the remaining bytes.
func (ri *RangeInfo) UnmarshalMsg(b []byte) (o []byte, err error) {
	var fields uint32
	if fields, o, err = msgp.ReadMapHeaderBytes(b); err != nil {
		return
	}
	for ; fields > 0; fields-- {
		var field string
		if field, o, err = msgp.ReadStringBytes(o); err != nil {
			return
		}
		var sz uint32
		switch field {
		case "domain":
			if sz, o, err = msgp.ReadArrayHeaderBytes(o); err == nil && sz != 3 {
				err = fmt.Errorf("expected 3 entries, got %d", sz)
			}
			for i := 0; i < 3 && err == nil; i++ {
				ri.Domain[i], o, err = msgp.ReadUint64Bytes(o)
			}
		case "aspect":
			if sz, o, err = msgp.ReadArrayHeaderBytes(o); err == nil && sz != 3 {
				err = fmt.Errorf("expected 3 entries, got %d", sz)
			}
			for i := 0; i < 3 && err == nil; i++ {
				ri.Aspect[i], o, err = msgp.ReadFloat64Bytes(o)
			}
		case "type":
			var s string
			if s, o, err = msgp.ReadStringBytes(o); err == nil {
				ri.Type, err = tuvok.ParseDataType(s)
			}
		case "components":
			ri.Components, o, err = msgp.ReadUintBytes(o)
		case "range":
			ri.Range, o, err = readRange(o)
		default:
			o, err = msgp.Skip(o)
		}
		if err != nil {
			err = fmt.Errorf("range info field %q: %w", field, err)
			return
		}
	}
	return
}
