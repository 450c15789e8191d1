package domain

import (
	"fmt"
	"strings"
	"time"
)

// AcquisitionMode decides when a tag's value is persisted.
type AcquisitionMode string

const (
	// Cyclic tags are logged on every poll.
	Cyclic AcquisitionMode = "cyclic"
	// OnChange tags are logged only when their value differs from the last processed one.
	OnChange AcquisitionMode = "on_change"
)

func ParseAcquisitionMode(s string) (AcquisitionMode, error) {
	switch AcquisitionMode(strings.ToLower(strings.TrimSpace(s))) {
	case Cyclic:
		return Cyclic, nil
	case OnChange, "onchange", "on-change":
		return OnChange, nil
	default:
		return "", fmt.Errorf("unknown acquisition mode %q", s)
	}
}

// DataType is the device-side representation of a tag value.
type DataType string

const (
	TypeBool   DataType = "bool"
	TypeByte   DataType = "byte"
	TypeWord   DataType = "word"
	TypeDWord  DataType = "dword"
	TypeUSInt  DataType = "usint"
	TypeSInt   DataType = "sint"
	TypeUInt   DataType = "uint"
	TypeInt    DataType = "int"
	TypeUDInt  DataType = "udint"
	TypeDInt   DataType = "dint"
	TypeReal   DataType = "real"
	TypeLReal  DataType = "lreal"
	TypeULInt  DataType = "ulint"
	TypeString DataType = "string"
	TypeTime   DataType = "time"
)

type typeInfo struct {
	size    int
	signed  bool
	integer bool
	float   bool
}

var dataTypes = map[DataType]typeInfo{
	TypeBool:   {size: 1, integer: true},
	TypeByte:   {size: 1, integer: true},
	TypeWord:   {size: 2, integer: true},
	TypeDWord:  {size: 4, integer: true},
	TypeUSInt:  {size: 1, integer: true},
	TypeSInt:   {size: 1, integer: true, signed: true},
	TypeUInt:   {size: 2, integer: true},
	TypeInt:    {size: 2, integer: true, signed: true},
	TypeUDInt:  {size: 4, integer: true},
	TypeDInt:   {size: 4, integer: true, signed: true},
	TypeReal:   {size: 4, float: true},
	TypeLReal:  {size: 8, float: true},
	TypeULInt:  {size: 8, integer: true},
	TypeString: {size: 256},
	TypeTime:   {size: 4, integer: true},
}

func ParseDataType(s string) (DataType, error) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := dataTypes[dt]; !ok {
		return "", fmt.Errorf("unknown data type %q", s)
	}
	return dt, nil
}

// Size is the number of bytes the type occupies in a device data block.
func (d DataType) Size() int { return dataTypes[d].size }

// Signed reports whether the big-endian encoding is two's complement.
func (d DataType) Signed() bool { return dataTypes[d].signed }

// IsInteger reports whether values of the type can be treated as a bit word.
func (d DataType) IsInteger() bool { return dataTypes[d].integer }

func (d DataType) IsFloat() bool { return dataTypes[d].float }

// Bits is the width of the type in bits; strings report 0.
func (d DataType) Bits() int {
	if d == TypeString {
		return 0
	}
	return d.Size() * 8
}

// TagDescriptor is the static description of a single device tag.
type TagDescriptor struct {
	Name          string
	CyclePeriod   time.Duration
	Mode          AcquisitionMode
	DataType      DataType
	NodeID        string
	Area          *int
	Offset        int
	BitIndex      *int
	SeverityClass *int
}

func (t TagDescriptor) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tag name is required")
	}
	if t.CyclePeriod <= 0 {
		return fmt.Errorf("tag %s: cycle period must be > 0", t.Name)
	}
	if t.Mode != Cyclic && t.Mode != OnChange {
		return fmt.Errorf("tag %s: unknown acquisition mode %q", t.Name, t.Mode)
	}
	if _, ok := dataTypes[t.DataType]; !ok {
		return fmt.Errorf("tag %s: unknown data type %q", t.Name, t.DataType)
	}
	if t.Offset < 0 {
		return fmt.Errorf("tag %s: offset must be >= 0", t.Name)
	}
	if t.BitIndex != nil {
		if !t.DataType.IsInteger() {
			return fmt.Errorf("tag %s: bit_index requires an integer data type", t.Name)
		}
		if *t.BitIndex < 0 || *t.BitIndex >= t.DataType.Bits() {
			return fmt.Errorf("tag %s: bit_index %d out of range for %s", t.Name, *t.BitIndex, t.DataType)
		}
	}
	return nil
}
