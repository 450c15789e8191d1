package domain

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Normalize folds the assorted Go numeric types a driver can return into the
// five raw value kinds used by the pipeline: bool, int64, uint64, float64 and string.
// Byte slices become strings so every normalized value is comparable.
func Normalize(v any) (any, bool) {
	switch val := v.(type) {
	case bool, int64, uint64, float64, string:
		return val, true
	case []byte:
		return string(val), true
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint:
		return uint64(val), true
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case float32:
		return float64(val), true
	case time.Duration:
		return int64(val / time.Millisecond), true
	default:
		return nil, false
	}
}

// Word views an integer raw value as an unsigned bit word of the given type's width.
func Word(v any, dt DataType) (uint64, bool) {
	if nv, ok := Normalize(v); ok {
		v = nv
	}
	var w uint64
	switch val := v.(type) {
	case bool:
		if val {
			w = 1
		}
	case int64:
		w = uint64(val)
	case uint64:
		w = val
	default:
		return 0, false
	}
	if bits := dt.Bits(); bits > 0 && bits < 64 {
		w &= 1<<uint(bits) - 1
	}
	return w, true
}

// Equal compares two raw values of the same tag. Values that do not
// normalize are compared structurally instead of with ==.
func Equal(a, b any) bool {
	na, okA := Normalize(a)
	nb, okB := Normalize(b)
	if okA && okB {
		return na == nb
	}
	return reflect.DeepEqual(a, b)
}

// ExtractBit reduces an integer raw value to 0 or 1.
func ExtractBit(v any, bit int) (int64, error) {
	w, ok := Word(v, TypeULInt)
	if !ok {
		return 0, fmt.Errorf("bit extraction needs an integer value, got %T", v)
	}
	if w&(1<<uint(bit)) != 0 {
		return 1, nil
	}
	return 0, nil
}

// Decode reads a value of type dt from a big-endian device data block at offset.
// Strings use the two byte header layout (max length, actual length).
func Decode(dt DataType, block []byte, offset int) (any, error) {
	size := dt.Size()
	if size == 0 {
		return nil, fmt.Errorf("unknown data type %q", dt)
	}
	if offset < 0 || offset >= len(block) {
		return nil, fmt.Errorf("offset %d outside block of %d bytes", offset, len(block))
	}
	if dt == TypeString {
		raw := block[offset:]
		if len(raw) < 2 {
			return nil, fmt.Errorf("string header truncated at offset %d", offset)
		}
		n := int(raw[1])
		if n > len(raw)-2 {
			n = len(raw) - 2
		}
		return string(raw[2 : 2+n]), nil
	}
	if offset+size > len(block) {
		return nil, fmt.Errorf("%s at offset %d needs %d bytes, block has %d", dt, offset, size, len(block))
	}
	b := block[offset : offset+size]
	switch dt {
	case TypeReal:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	case TypeLReal:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	}
	var u uint64
	switch size {
	case 1:
		u = uint64(b[0])
	case 2:
		u = uint64(binary.BigEndian.Uint16(b))
	case 4:
		u = uint64(binary.BigEndian.Uint32(b))
	case 8:
		u = binary.BigEndian.Uint64(b)
	}
	if dt.Signed() {
		shift := uint(64 - size*8)
		return int64(u<<shift) >> shift, nil
	}
	return u, nil
}
