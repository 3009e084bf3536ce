package bufferpool

import "testing"

func TestGetReturnsEmptyBuffer(t *testing.T) {
	buf := Get()
	defer Put(buf)
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer, got len %d", buf.Len())
	}
}

func TestPutResetsBeforeReuse(t *testing.T) {
	buf := Get()
	buf.WriteString("leftover")
	Put(buf)

	reused := Get()
	defer Put(reused)
	if reused.Len() != 0 {
		t.Fatalf("expected reused buffer to be reset, got len %d", reused.Len())
	}
}
