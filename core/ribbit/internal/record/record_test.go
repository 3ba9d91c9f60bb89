package record

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		values []any
	}{
		{name: "empty", values: []any{}},
		{name: "null", values: []any{nil}},
		{name: "ints", values: []any{int64(0), int64(-1), int64(math.MaxInt64), int64(math.MinInt64)}},
		{name: "reals", values: []any{1.5, -0.0, math.Inf(1), 3.14159}},
		{name: "text", values: []any{"", "hello", "ünïcødé ✓"}},
		{name: "blob", values: []any{[]byte{}, []byte{0, 1, 2, 255}}},
		{name: "other", values: []any{Other("custom")}},
		{name: "mixed", values: []any{int64(1), "a", nil, 2.5, []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.values)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.values) {
				t.Errorf("Decode(Encode()) = %#v, want %#v", got, tt.values)
			}
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	values := []any{int64(7), "seven", 7.0, nil}
	a, _ := Encode(values)
	b, _ := Encode(values)
	if !bytes.Equal(a, b) {
		t.Error("Encode() is not deterministic")
	}
	c, _ := Encode([]any{"ab"})
	d, _ := Encode([]any{"a", "b"})
	if bytes.Equal(c, d) {
		t.Error("Encode() is ambiguous across value boundaries")
	}
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	if _, err := Encode([]any{struct{}{}}); err == nil {
		t.Error("Encode(struct{}) expected error")
	}
}

func TestDecodeErrors(t *testing.T) {
	good, _ := Encode([]any{"hello", int64(3)})
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: ErrTruncated},
		{name: "cut", data: good[:len(good)-3], want: ErrTruncated},
		{name: "trailing", data: append(append([]byte{}, good...), 0), want: ErrTrailing},
		{name: "bad tag", data: []byte{1, 0, 9}, want: ErrBadTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	rows := [][]any{
		{},
		{int64(1), "a"},
		{nil, 2.5, []byte{9, 9}},
	}
	for _, v := range rows {
		b, err := Encode(v)
		if err != nil {
			t.Fatal(err)
		}
		if !Verify(v, Digest(b)) {
			t.Errorf("Verify(%v, Digest(Encode())) = false", v)
		}
		if Verify(append(v, int64(0)), Digest(b)) {
			t.Errorf("Verify() accepted different values for %v", v)
		}
	}
}

func TestRowPayloadDetectsEveryFlippedByte(t *testing.T) {
	values := []any{int64(42), "name", 1.25, nil, []byte{1, 2, 3}}
	payload, err := EncodeRow(values)
	if err != nil {
		t.Fatalf("EncodeRow() error = %v", err)
	}
	got, err := DecodeRow(payload)
	if err != nil {
		t.Fatalf("DecodeRow() error = %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Fatalf("DecodeRow() = %v, want %v", got, values)
	}

	for i := range payload {
		corrupt := append([]byte(nil), payload...)
		corrupt[i] ^= 0x5a
		if _, err := DecodeRow(corrupt); err == nil {
			t.Errorf("DecodeRow() accepted payload with byte %d flipped", i)
		}
	}

	if _, err := DecodeRow(payload[:len(payload)-1]); err == nil {
		t.Error("DecodeRow() accepted truncated payload")
	}
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	tests := []struct {
		in      any
		want    any
		wantErr bool
	}{
		{in: nil, want: nil},
		{in: 5, want: int64(5)},
		{in: int32(-5), want: int64(-5)},
		{in: uint16(9), want: int64(9)},
		{in: uint64(math.MaxUint64), wantErr: true},
		{in: float32(0.5), want: 0.5},
		{in: true, want: int64(1)},
		{in: false, want: int64(0)},
		{in: "s", want: "s"},
		{in: []byte("b"), want: []byte("b")},
		{in: ts, want: "2024-02-03T04:05:06Z"},
		{in: map[string]int{}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Normalize(%#v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Normalize(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{int64(1), int64(2), -1},
		{int64(2), 1.5, 1},
		{2.0, int64(2), 0},
		{nil, int64(0), 0},
		{nil, int64(-1), 1},
		{int64(100), "a", -1},
		{"b", "a", 1},
		{"a", []byte("a"), -1},
		{[]byte{1}, []byte{2}, -1},
	}
	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%#v, %#v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b any
		want bool
	}{
		{nil, nil, true},
		{nil, int64(0), false},
		{int64(1), 1.0, true},
		{"1", int64(1), false},
		{"x", "x", true},
		{[]byte("x"), "x", false},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("Equal(%#v, %#v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestKey(t *testing.T) {
	if Key(2.0) != Key(int64(2)) {
		t.Error("Key(2.0) != Key(int64(2))")
	}
	if Key([]byte("a")) == Key("a") {
		t.Error("blob key collides with text key")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{int64(-3), "-3"},
		{2.5, "2.5"},
		{"txt", "txt"},
		{[]byte{0xab}, "x'ab'"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
