// Package roster implements the connection roster of spec.md §3/§4.2:
// a process-wide intrusive doubly-linked list guarded by one mutex,
// supporting push-back on construction and removal on destruction,
// exposing only the live-connection count for introspection.
package roster

import "sync"

// Link is the intrusive pair of pointers a roster member embeds.
// Per spec.md §9's design note, this is the systems-language "cyclic
// free doubly-linked list" shape; a Go reimplementation keeps the
// intrusive pointers rather than switching to a plain map, since the
// roster never needs to look members up by key — only to walk or
// count them.
type Link struct {
	prev, next *Link
	owner      any
}

// Roster is the mutex-guarded registry. The zero value is ready to use.
type Roster struct {
	mu    sync.Mutex
	head  *Link
	tail  *Link
	count int
}

// Register appends a member at the tail, under the roster's mutex.
// member is the intrusive Link embedded in the caller's connection
// struct; owner is kept only so Members (used by tests) can report
// identity, never walked by the state machine itself (spec.md §4.2:
// "the state machine never iterates it").
func (r *Roster) Register(member *Link, owner any) {
	member.owner = owner

	r.mu.Lock()
	defer r.mu.Unlock()

	member.prev = r.tail
	member.next = nil
	if r.tail != nil {
		r.tail.next = member
	} else {
		r.head = member
	}
	r.tail = member
	r.count++
}

// Unregister removes member, under the roster's mutex. Unregistering a
// member that was never registered, or registering the same Link
// twice without unregistering, are caller bugs this package does not
// defend against — matching the intrusive-list contract of spec.md §9.
func (r *Roster) Unregister(member *Link) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if member.prev != nil {
		member.prev.next = member.next
	} else if r.head == member {
		r.head = member.next
	}
	if member.next != nil {
		member.next.prev = member.prev
	} else if r.tail == member {
		r.tail = member.prev
	}
	member.prev, member.next = nil, nil
	r.count--
}

// Count returns the current live-connection count.
func (r *Roster) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Members returns the owners of every currently registered Link, for
// test introspection only.
func (r *Roster) Members() []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]any, 0, r.count)
	for l := r.head; l != nil; l = l.next {
		out = append(out, l.owner)
	}
	return out
}
