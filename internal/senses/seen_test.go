package senses

import (
	"fmt"
	"testing"
)

func TestSeenRingAdd(t *testing.T) {
	r := newSeenRing(4)

	if !r.Add("a") {
		t.Error("first add of 'a' reported as seen")
	}
	if r.Add("a") {
		t.Error("second add of 'a' reported as new")
	}
	if !r.Add("b") {
		t.Error("first add of 'b' reported as seen")
	}
}

func TestSeenRingEvictsOldest(t *testing.T) {
	r := newSeenRing(3)

	r.Add("a")
	r.Add("b")
	r.Add("c")
	r.Add("d") // evicts "a"

	if !r.Add("a") {
		t.Error("evicted ID still reported as seen")
	}
	if r.Add("c") {
		t.Error("retained ID reported as new")
	}
}

func TestSeenRingStaysBounded(t *testing.T) {
	const size = 16
	r := newSeenRing(size)

	for i := 0; i < size*10; i++ {
		r.Add(fmt.Sprintf("%d", i))
	}
	if len(r.ids) > size {
		t.Errorf("ring holds %d IDs, cap is %d", len(r.ids), size)
	}
}
