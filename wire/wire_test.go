package wire

import (
	"bytes"
	"testing"

	"github.com/bodand/lindadb/value"
)

func roundTrip(t *testing.T, tup value.Tuple) value.Tuple {
	t.Helper()
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(tup); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestRoundTripScalarKinds(t *testing.T) {
	tup := value.NewTuple(
		value.NewInt16(-5), value.NewUint16(5),
		value.NewInt32(-500), value.NewUint32(500),
		value.NewInt64(-50000), value.NewUint64(50000),
		value.NewFloat32(1.5), value.NewFloat64(2.25),
		value.NewString("hello"),
	)
	got := roundTrip(t, tup)
	if !value.TuplesEqual(got, tup) {
		t.Fatalf("roundtrip mismatch: got %v want %v", got, tup)
	}
}

func TestRoundTripFnCallNested(t *testing.T) {
	tup := value.NewTuple(value.NewFnCall("compute", value.NewInt32(1), value.NewString("x")))
	got := roundTrip(t, tup)
	if !value.TuplesEqual(got, tup) {
		t.Fatalf("roundtrip mismatch: got %v want %v", got, tup)
	}
}

func TestRoundTripFnCallTag(t *testing.T) {
	tup := value.NewTuple(value.NewFnCallTag(), value.NewInt32(9))
	got := roundTrip(t, tup)
	if !value.TuplesEqual(got, tup) {
		t.Fatalf("roundtrip mismatch: got %v want %v", got, tup)
	}
}

func TestRoundTripEmptyTuple(t *testing.T) {
	tup := value.NewTuple()
	got := roundTrip(t, tup)
	if got.Size() != 0 {
		t.Fatalf("expected empty tuple, got %v", got)
	}
}

func TestDecodeCorruptMessage(t *testing.T) {
	var buf bytes.Buffer
	tup := value.NewTuple(value.NewString("poisoned"))
	if err := NewEncoder(&buf).Encode(tup); err != nil {
		t.Fatalf("encode: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	if _, err := NewDecoder(bytes.NewReader(corrupted)).Decode(); err == nil {
		t.Fatal("expected corrupted frame to fail decoding")
	}
}
