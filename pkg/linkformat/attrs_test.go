package linkformat

import (
	"reflect"
	"testing"
)

func TestAttributes_SetOverwrites(t *testing.T) {
	a := NewAttributes()
	a.Add("rt", "one")
	a.Add("rt", "two")
	a.Set("rt", "three")

	if got := a.Values("rt"); !reflect.DeepEqual(got, []string{"three"}) {
		t.Errorf("values after Set: got %v, want [three]", got)
	}
}

func TestAttributes_AddPreservesDuplicates(t *testing.T) {
	a := NewAttributes()
	a.Add("rt", "x")
	a.Add("rt", "x")

	if got := a.Values("rt"); len(got) != 2 {
		t.Errorf("got %d values, want 2", len(got))
	}
}

func TestAttributes_KeyOrderIsInsertionOrder(t *testing.T) {
	a := NewAttributes()
	a.Set("zz", "1")
	a.Set("aa", "2")
	a.Add("zz", "3")
	a.Set("mm", "4")

	want := []string{"zz", "aa", "mm"}
	if got := a.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("keys: got %v, want %v", got, want)
	}
}

func TestAttributes_Clear(t *testing.T) {
	a := NewAttributes()
	a.Set("rt", "light")
	a.Set("if", "sensor")
	a.Clear("rt")

	if a.Has("rt") {
		t.Error("rt still present after Clear")
	}
	if got := a.Keys(); !reflect.DeepEqual(got, []string{"if"}) {
		t.Errorf("keys after Clear: got %v, want [if]", got)
	}
}

func TestAttributes_GetOnFlag(t *testing.T) {
	a := NewAttributes()
	a.AddFlag("obs")

	v, ok := a.Get("obs")
	if !ok {
		t.Fatal("flag key not reported present")
	}
	if v != "" {
		t.Errorf("flag value: got %q, want empty", v)
	}
}

func TestAttributes_CopyFromIsDeep(t *testing.T) {
	src := NewAttributes()
	src.Add("rt", "a")

	dst := NewAttributes()
	dst.Set("stale", "x")
	dst.CopyFrom(src)

	src.Add("rt", "b")

	if dst.Has("stale") {
		t.Error("CopyFrom kept prior content")
	}
	if got := dst.Values("rt"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("dst mutated through src: got %v, want [a]", got)
	}
}
