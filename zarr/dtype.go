package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Dtype is a simple zarr data type following the NumPy array protocol type
// string (typestr) format. The format consists of 3 parts:
//   - One character describing the byteorder of the data:
//     "<": little-endian; ">": big-endian; "|": not-relevant
//   - One character code giving the basic type of the array
//   - An integer specifying the number of bytes the type uses.
//
// The byte order is optional in some circumstances, within the zarr format
// byte order MUST be specified
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

func ParseDtype(s string) (dt Dtype, err error) {
	// bug in python implementation uses HTML escape sequences when serializing JSON
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid Dtype string. %q is too short", s)
	}

	boByte, s := s[0], s[1:]
	dt.ByteOrder, err = ParseByteOrder(rune(boByte))
	if err != nil {
		return dt, err
	}

	typeByte, s := s[0], s[1:]
	dt.BasicType, err = ParseBasicType(rune(typeByte))
	if err != nil {
		return dt, err
	}

	size, err := strconv.ParseInt(s, 10, 0)
	if err != nil {
		return dt, err
	}
	dt.ByteSize = int(size)

	return dt, nil
}

func (dt Dtype) String() string {
	return fmt.Sprintf("%s%s%d", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize)
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return []byte(`"` + dt.String() + `"`), nil
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}

	*dt = t
	return nil
}

// Order returns the binary byte order chunks of this dtype are encoded with.
func (dt Dtype) Order() binary.ByteOrder {
	if dt.ByteOrder == BOBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// NewValues allocates a flat slice of n elements with the Go type matching dt,
// suitable for binary decoding of chunk data.
func (dt Dtype) NewValues(n int) (interface{}, error) {
	switch dt.BasicType {
	case BTBoolean:
		return make([]bool, n), nil
	case BTInteger:
		switch dt.ByteSize {
		case 1:
			return make([]int8, n), nil
		case 2:
			return make([]int16, n), nil
		case 4:
			return make([]int32, n), nil
		case 8:
			return make([]int64, n), nil
		}
	case BTUnsigned:
		switch dt.ByteSize {
		case 1:
			return make([]uint8, n), nil
		case 2:
			return make([]uint16, n), nil
		case 4:
			return make([]uint32, n), nil
		case 8:
			return make([]uint64, n), nil
		}
	case BTFloatingPoint:
		switch dt.ByteSize {
		case 4:
			return make([]float32, n), nil
		case 8:
			return make([]float64, n), nil
		}
	case BTComplex:
		switch dt.ByteSize {
		case 8:
			return make([]complex64, n), nil
		case 16:
			return make([]complex128, n), nil
		}
	}
	return nil, fmt.Errorf("unsupported decoding type: %s", dt)
}

// DtypeOf maps a flat Go value slice onto its little-endian zarr dtype.
func DtypeOf(values interface{}) (Dtype, error) {
	switch values.(type) {
	case []float32:
		return Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 4}, nil
	case []float64:
		return Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 8}, nil
	case []int32:
		return Dtype{ByteOrder: BOLittleEndian, BasicType: BTInteger, ByteSize: 4}, nil
	case []int64:
		return Dtype{ByteOrder: BOLittleEndian, BasicType: BTInteger, ByteSize: 8}, nil
	default:
		return Dtype{}, fmt.Errorf("unsupported value type %T", values)
	}
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTTimedelta     BasicType = 'm'
	BTDatetime      BasicType = 'M'
	BTString        BasicType = 'S'
	BTUnicode       BasicType = 'U'
	BTOther         BasicType = 'V'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTTimedelta:     "timeDelta",
	BTDatetime:      "dateTime",
	BTString:        "string",
	BTUnicode:       "unicode",
	BTOther:         "other",
}
