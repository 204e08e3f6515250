package value

import "testing"

func TestCompareDistinctKinds(t *testing.T) {
	a := NewInt16(5)
	b := NewString("5")
	if Compare(a, b) >= 0 {
		t.Fatal("expected i16 to sort before string")
	}
	if Compare(b, a) <= 0 {
		t.Fatal("expected string to sort after i16")
	}
}

func TestCompareSameKind(t *testing.T) {
	if Compare(NewInt32(1), NewInt32(2)) >= 0 {
		t.Fatal("expected 1 < 2")
	}
	if !Equal(NewUint64(42), NewUint64(42)) {
		t.Fatal("expected 42 == 42")
	}
	if !Equal(NewString("hi"), NewString("hi")) {
		t.Fatal("expected equal strings")
	}
}

func TestFnCallTagOrdering(t *testing.T) {
	tag := NewFnCallTag()
	others := []Value{
		NewInt16(0), NewUint16(0), NewInt32(0), NewUint32(0),
		NewInt64(0), NewUint64(0), NewFloat32(0), NewFloat64(0),
		NewString(""), NewFnCall("f"),
	}
	for _, o := range others {
		if Compare(tag, o) >= 0 {
			t.Fatalf("expected fn-call-tag < %v", o)
		}
	}
	if !Equal(tag, NewFnCallTag()) {
		t.Fatal("expected fn-call-tag to equal itself")
	}
}

func TestFloatRoundTrip(t *testing.T) {
	v := NewFloat64(3.5)
	if v.Float64() != 3.5 {
		t.Fatalf("got %v", v.Float64())
	}
	v32 := NewFloat32(1.5)
	if v32.Float32() != 1.5 {
		t.Fatalf("got %v", v32.Float32())
	}
}

func TestTupleCompare(t *testing.T) {
	a := NewTuple(NewString("x"), NewInt32(1))
	b := NewTuple(NewString("x"), NewInt32(1))
	c := NewTuple(NewString("x"), NewInt32(2))
	if !TuplesEqual(a, b) {
		t.Fatal("expected equal tuples")
	}
	if TuplesEqual(a, c) {
		t.Fatal("expected distinct tuples")
	}
	if CompareTuples(NewTuple(NewInt32(1)), NewTuple(NewInt32(1), NewInt32(2))) >= 0 {
		t.Fatal("expected shorter tuple to sort first")
	}
}

func TestFnCallNesting(t *testing.T) {
	call := NewFnCall("computed", NewString("A"), NewString("B"))
	if call.Kind() != KindFnCall {
		t.Fatal("expected fn-call kind")
	}
	fc := call.FnCall()
	if fc.Name != "computed" || fc.Args.Size() != 2 {
		t.Fatalf("got %+v", fc)
	}
}
