/*
   This file handles the element types a volume can hold and the properties
   needed to scan and quantize them.
*/

package tuvok

import (
	"fmt"
	"math"
	"strings"
)

// DataType is a unique ID for each type of element value, e.g., a uint8 or a float32.
type DataType uint8

const (
	T_uint8 DataType = iota
	T_int8
	T_uint16
	T_int16
	T_uint32
	T_int32
	T_uint64
	T_int64
	T_float32
	T_float64
)

// AllDataTypes lists the closed set of supported element types.
var AllDataTypes = []DataType{
	T_uint8, T_int8, T_uint16, T_int16, T_uint32, T_int32, T_uint64, T_int64, T_float32, T_float64,
}

var typeBytes = map[DataType]int32{
	T_uint8:   1,
	T_int8:    1,
	T_uint16:  2,
	T_int16:   2,
	T_uint32:  4,
	T_int32:   4,
	T_uint64:  8,
	T_int64:   8,
	T_float32: 4,
	T_float64: 8,
}

var typeNames = map[DataType]string{
	T_uint8:   "uint8",
	T_int8:    "int8",
	T_uint16:  "uint16",
	T_int16:   "int16",
	T_uint32:  "uint32",
	T_int32:   "int32",
	T_uint64:  "uint64",
	T_int64:   "int64",
	T_float32: "float32",
	T_float64: "float64",
}

// DataTypeBytes returns the # of bytes for a given type.
func DataTypeBytes(t DataType) int32 {
	return typeBytes[t]
}

// ParseDataType returns the DataType for names like "uint16" or "float32".
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// DataTypeFor returns the DataType of the given bit width, signedness and float-ness.
func DataTypeFor(bitWidth uint, signed, float bool) (DataType, error) {
	for _, t := range AllDataTypes {
		if t.BitWidth() == bitWidth && t.IsSigned() == signed && t.IsFloat() == float {
			return t, nil
		}
	}
	return 0, fmt.Errorf("no data type with %d bits (signed %t, float %t)", bitWidth, signed, float)
}

func (t DataType) String() string {
	if name, found := typeNames[t]; found {
		return name
	}
	return fmt.Sprintf("unknown data type (%d)", uint8(t))
}

// Valid returns true if the type is one of the supported element types.
func (t DataType) Valid() bool {
	_, found := typeBytes[t]
	return found
}

// Bytes returns the number of bytes of one value.
func (t DataType) Bytes() int {
	return int(typeBytes[t])
}

// BitWidth returns the number of bits of one value.
func (t DataType) BitWidth() uint {
	return uint(typeBytes[t]) * 8
}

// IsFloat returns true for IEEE float types.
func (t DataType) IsFloat() bool {
	return t == T_float32 || t == T_float64
}

// IsSigned returns true for signed integer and float types.
func (t DataType) IsSigned() bool {
	switch t {
	case T_int8, T_int16, T_int32, T_int64, T_float32, T_float64:
		return true
	}
	return false
}

// Lowest returns the most negative representable value, or zero for unsigned types.
func (t DataType) Lowest() float64 {
	switch t {
	case T_int8:
		return math.MinInt8
	case T_int16:
		return math.MinInt16
	case T_int32:
		return math.MinInt32
	case T_int64:
		return math.MinInt64
	case T_float32:
		return -math.MaxFloat32
	case T_float64:
		return -math.MaxFloat64
	}
	return 0
}

// Highest returns the largest representable value.
func (t DataType) Highest() float64 {
	switch t {
	case T_uint8:
		return math.MaxUint8
	case T_int8:
		return math.MaxInt8
	case T_uint16:
		return math.MaxUint16
	case T_int16:
		return math.MaxInt16
	case T_uint32:
		return math.MaxUint32
	case T_int32:
		return math.MaxInt32
	case T_uint64:
		return math.MaxUint64
	case T_int64:
		return math.MaxInt64
	case T_float32:
		return math.MaxFloat32
	case T_float64:
		return math.MaxFloat64
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler so types can appear in TOML and JSON.
func (t DataType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(b []byte) error {
	parsed, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
