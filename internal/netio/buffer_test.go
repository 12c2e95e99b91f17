package netio

import "testing"

func TestAppendConsumeBytesConsumable(t *testing.T) {
	b := NewIOBuffer(4)
	b.Append([]byte("hello"))

	if got := b.BytesConsumable(); got != 5 {
		t.Fatalf("BytesConsumable = %d, want 5", got)
	}

	b.Consume(2)
	if got := string(b.Bytes()); got != "llo" {
		t.Fatalf("Bytes = %q, want %q", got, "llo")
	}
}

func TestCompactIfBelowReclaimsConsumedPrefix(t *testing.T) {
	b := NewIOBuffer(16)
	b.Append([]byte("0123456789"))
	b.Consume(8)

	b.CompactIfBelow(100)

	if got := string(b.Bytes()); got != "89" {
		t.Fatalf("Bytes after compact = %q, want %q", got, "89")
	}
	if b.start != 0 {
		t.Fatalf("start = %d, want 0 after compaction", b.start)
	}
}

func TestClearDropsAllBufferedBytes(t *testing.T) {
	b := NewIOBuffer(4)
	b.Append([]byte("pending"))
	b.Clear()

	if got := b.BytesConsumable(); got != 0 {
		t.Fatalf("BytesConsumable after Clear = %d, want 0", got)
	}
}
