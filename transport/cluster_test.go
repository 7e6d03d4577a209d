package transport

import "testing"

func TestClusterGrowAndFlush(t *testing.T) {
	c := newCluster(10)
	if !c.empty() {
		t.Fatal("fresh cluster should be empty")
	}
	if !c.grow(6) {
		t.Fatal("6 bytes should fit in a 10-byte cluster")
	}
	c.write([]byte{1, 2, 3, 4, 5, 6})
	if c.grow(5) {
		t.Fatal("5 more bytes should not fit (6+5 > 10)")
	}
	if c.headroom() != 4 {
		t.Fatalf("headroom = %d, want 4", c.headroom())
	}
	data := c.flush()
	if len(data) != 6 {
		t.Fatalf("flushed %d bytes, want 6", len(data))
	}
	if !c.empty() {
		t.Fatal("cluster should be empty after flush")
	}
}

func TestClusterFlushEmptyReturnsNil(t *testing.T) {
	c := newCluster(10)
	if data := c.flush(); data != nil {
		t.Errorf("flush of empty cluster = %v, want nil", data)
	}
}

func TestClusterAckIDOmission(t *testing.T) {
	c := newCluster(100)
	if c.canOmitAckID(0, 5) {
		t.Error("fresh cluster has nothing to omit against")
	}
	c.rememberReliable(0, 5)
	if !c.canOmitAckID(0, 6) {
		t.Error("sequential id on same stream should be omittable")
	}
	if c.canOmitAckID(0, 7) {
		t.Error("non-sequential id should not be omittable")
	}
	if c.canOmitAckID(1, 6) {
		t.Error("sequential id on a different stream should not be omittable")
	}
	c.flush()
	if c.canOmitAckID(0, 6) {
		t.Error("flush should clear the cached last-reliable state")
	}
}

func TestClusterResetClearsWithoutReturning(t *testing.T) {
	c := newCluster(10)
	c.write([]byte{1, 2, 3})
	c.rememberReliable(0, 1)
	c.reset()
	if !c.empty() {
		t.Error("reset should clear the buffer")
	}
	if c.canOmitAckID(0, 2) {
		t.Error("reset should clear the cached last-reliable state")
	}
}

func TestEffectiveMaxPayload(t *testing.T) {
	got := effectiveMaxPayload(MaximumMTU, IPv4HeaderBytes, 16)
	want := MaximumMTU - IPv4HeaderBytes - UDPHeaderBytes - 16
	if got != want {
		t.Errorf("effectiveMaxPayload = %d, want %d", got, want)
	}
	if got := effectiveMaxPayload(20, 20, 100); got != 0 {
		t.Errorf("negative payload should clamp to 0, got %d", got)
	}
}
