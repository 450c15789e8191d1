package domain

import (
	"math"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	realBlock := make([]byte, 4)
	bits := math.Float32bits(12.5)
	realBlock[0], realBlock[1], realBlock[2], realBlock[3] = byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits)

	cases := []struct {
		name   string
		dt     DataType
		block  []byte
		offset int
		want   any
	}{
		{"byte", TypeByte, []byte{0x00, 0xAB}, 1, uint64(0xAB)},
		{"word", TypeWord, []byte{0x01, 0x02}, 0, uint64(0x0102)},
		{"int negative", TypeInt, []byte{0xFF, 0xFE}, 0, int64(-2)},
		{"sint negative", TypeSInt, []byte{0x80}, 0, int64(-128)},
		{"dint", TypeDInt, []byte{0x00, 0x00, 0x01, 0x00}, 0, int64(256)},
		{"udint high bit", TypeUDInt, []byte{0x80, 0x00, 0x00, 0x00}, 0, uint64(0x80000000)},
		{"ulint high bit", TypeULInt, []byte{0x80, 0, 0, 0, 0, 0, 0, 1}, 0, uint64(0x8000000000000001)},
		{"real", TypeReal, realBlock, 0, 12.5},
		{"string", TypeString, []byte{10, 3, 'a', 'b', 'c', 'x'}, 0, "abc"},
		{"string clipped", TypeString, []byte{10, 9, 'a', 'b'}, 0, "ab"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.dt, tc.block, tc.offset)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v (%T) want %v (%T)", got, got, tc.want, tc.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(TypeDInt, []byte{0, 1}, 0); err == nil {
		t.Fatal("expected short block error")
	}
	if _, err := Decode(TypeWord, []byte{0, 1}, 5); err == nil {
		t.Fatal("expected offset error")
	}
	if _, err := Decode(DataType("blob"), []byte{0}, 0); err == nil {
		t.Fatal("expected unknown type error")
	}
	if _, err := Decode(TypeString, []byte{1, 2, 3}, 2); err == nil {
		t.Fatal("expected truncated header error")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{int16(-3), int64(-3)},
		{uint16(7), uint64(7)},
		{float32(1.5), 1.5},
		{true, true},
		{"x", "x"},
		{1500 * time.Millisecond, int64(1500)},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		if !ok || got != tc.want {
			t.Fatalf("Normalize(%v) = %v, %v", tc.in, got, ok)
		}
	}
	if _, ok := Normalize([]int{1}); ok {
		t.Fatal("slices should not normalize")
	}
}

func TestWordMasksToTypeWidth(t *testing.T) {
	w, ok := Word(int64(-1), TypeWord)
	if !ok || w != 0xFFFF {
		t.Fatalf("got %x %v", w, ok)
	}
	if _, ok := Word(1.5, TypeWord); ok {
		t.Fatal("floats are not words")
	}
	if w, _ := Word(true, TypeBool); w != 1 {
		t.Fatalf("bool word = %d", w)
	}
}

func TestExtractBit(t *testing.T) {
	if b, err := ExtractBit(uint64(0b100), 2); err != nil || b != 1 {
		t.Fatalf("bit 2 = %d, %v", b, err)
	}
	if b, err := ExtractBit(int64(0b100), 1); err != nil || b != 0 {
		t.Fatalf("bit 1 = %d, %v", b, err)
	}
	if _, err := ExtractBit("on", 0); err == nil {
		t.Fatal("expected error for string value")
	}
}

func TestEqualHandlesUncomparableValues(t *testing.T) {
	if !Equal([]byte("ab"), []byte("ab")) {
		t.Fatal("equal byte slices should compare equal")
	}
	if !Equal(int16(4), int64(4)) {
		t.Fatal("normalized integers should compare equal")
	}
	if Equal([]int{1}, []int{2}) {
		t.Fatal("different slices compared equal")
	}
	if w, ok := Word(7, TypeWord); !ok || w != 7 {
		t.Fatalf("Word(int) = %d, %v", w, ok)
	}
}
