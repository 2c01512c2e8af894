package session

import "testing"

func TestEmitter_FanOutOrder(t *testing.T) {
	var e emitter[int]
	var order []string

	e.subscribe(func(v int) { order = append(order, "first") })
	e.subscribe(func(v int) { order = append(order, "second") })
	e.subscribe(func(v int) { order = append(order, "third") })

	e.emit(1)

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("calls = %d, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestEmitter_Unsubscribe(t *testing.T) {
	var e emitter[string]
	var got []string

	e.subscribe(func(v string) { got = append(got, "keep:"+v) })
	off := e.subscribe(func(v string) { got = append(got, "drop:"+v) })

	e.emit("a")
	off()
	e.emit("b")

	want := []string{"keep:a", "drop:a", "keep:b"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEmitter_UnsubscribeTwice(t *testing.T) {
	var e emitter[int]
	calls := 0
	off := e.subscribe(func(int) { calls++ })

	off()
	off()
	e.emit(1)

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
	if e.len() != 0 {
		t.Errorf("len = %d, want 0", e.len())
	}
}
