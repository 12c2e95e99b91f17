package roster

import "testing"

func TestRegisterUnregisterCount(t *testing.T) {
	var r Roster
	var a, b, c Link

	r.Register(&a, "a")
	r.Register(&b, "b")
	r.Register(&c, "c")

	if got := r.Count(); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}

	r.Unregister(&b)
	if got := r.Count(); got != 2 {
		t.Fatalf("count after unregister = %d, want 2", got)
	}

	members := r.Members()
	if len(members) != 2 || members[0] != "a" || members[1] != "c" {
		t.Fatalf("members = %v, want [a c]", members)
	}
}

func TestUnregisterHeadAndTail(t *testing.T) {
	var r Roster
	var a, b Link

	r.Register(&a, "a")
	r.Register(&b, "b")

	r.Unregister(&a)
	if got := r.Count(); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}

	r.Unregister(&b)
	if got := r.Count(); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}
