package ringbuf

import (
	"reflect"
	"testing"
)

func TestPushAndAll(t *testing.T) {
	b := New[int](3)
	for _, v := range []int{1, 2, 3, 4, 5} {
		b.Push(v)
	}
	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}
	if got := b.All(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Fatalf("All() = %v, want [3 4 5]", got)
	}
}

func TestLatestEmpty(t *testing.T) {
	b := New[int](3)
	if _, ok := b.Latest(); ok {
		t.Fatal("expected no latest on empty buffer")
	}
}

func TestLatest(t *testing.T) {
	b := New[int](3)
	b.Push(1)
	b.Push(2)
	v, ok := b.Latest()
	if !ok || v != 2 {
		t.Fatalf("Latest() = %v, %v; want 2, true", v, ok)
	}
}

func TestLastClampsToLen(t *testing.T) {
	b := New[int](5)
	b.Push(1)
	b.Push(2)
	if got := b.Last(10); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("Last(10) = %v, want [1 2]", got)
	}
}

func TestLastSuffixOfAll(t *testing.T) {
	b := New[int](4)
	for _, v := range []int{1, 2, 3, 4, 5, 6} {
		b.Push(v)
	}
	all := b.All()
	for n := 0; n <= len(all); n++ {
		want := all[len(all)-n:]
		got := b.Last(n)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Last(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestFullAndClear(t *testing.T) {
	b := New[int](2)
	if b.Full() {
		t.Fatal("expected not full")
	}
	b.Push(1)
	b.Push(2)
	if !b.Full() {
		t.Fatal("expected full")
	}
	b.Clear()
	if b.Len() != 0 || b.Full() {
		t.Fatal("expected empty after Clear")
	}
}

func TestPushOverwritesOldest(t *testing.T) {
	b := New[string](2)
	b.Push("a")
	b.Push("b")
	b.Push("c")
	if got := b.All(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("All() = %v, want [b c]", got)
	}
}
