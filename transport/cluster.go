package transport

// cluster accumulates outbound transport messages into at most one
// MTU-sized datagram. It is reused
// across messages until flushed; flush hands its bytes to the outbound
// datagram queue and resets state for the next datagram.
type cluster struct {
	buf          []byte
	maxPayload   int
	lastStream   uint8
	lastAckID    uint32
	haveLast     bool
	lossRepAdded bool
}

func newCluster(maxPayload int) *cluster {
	return &cluster{maxPayload: maxPayload, buf: make([]byte, 0, maxPayload)}
}

func (c *cluster) bytes() int { return len(c.buf) }

func (c *cluster) headroom() int { return c.maxPayload - len(c.buf) }

func (c *cluster) empty() bool { return len(c.buf) == 0 }

// grow reports whether n more bytes fit in the in-progress datagram
// without exceeding maxPayload; it does not itself append anything - the
// caller encodes directly into the buffer via write.
func (c *cluster) grow(n int) bool {
	return len(c.buf)+n <= c.maxPayload
}

// write appends already-encoded bytes (header, ACK-ID tag, payload) to
// the cluster. Callers must have checked grow first.
func (c *cluster) write(b []byte) {
	c.buf = append(c.buf, b...)
}

// rememberReliable caches the (stream, ack-id) of the last reliable
// message written, so that a subsequent reliable write to the same
// stream at the next sequential id may omit its ACK-ID tag.
func (c *cluster) rememberReliable(stream uint8, ackID uint32) {
	c.lastStream = stream
	c.lastAckID = ackID
	c.haveLast = true
}

// canOmitAckID reports whether a reliable write to stream at id can skip
// encoding its own ACK-ID tag because it immediately follows the cached
// last reliable write.
func (c *cluster) canOmitAckID(stream uint8, id uint32) bool {
	return c.haveLast && c.lastStream == stream && c.lastAckID+1 == id
}

// flush detaches the accumulated datagram payload and resets the cluster
// for reuse. Returns nil if nothing was written.
func (c *cluster) flush() []byte {
	c.haveLast = false
	c.lossRepAdded = false
	if len(c.buf) == 0 {
		return nil
	}
	out := c.buf
	c.buf = make([]byte, 0, c.maxPayload)
	return out
}

// reset discards any in-progress datagram without returning it, used when
// tearing down a connection mid-assembly.
func (c *cluster) reset() {
	c.buf = c.buf[:0]
	c.haveLast = false
	c.lossRepAdded = false
}

// effectiveMaxPayload computes the usable payload capacity of a datagram
// given the path MTU and per-layer overhead.
func effectiveMaxPayload(mtu, ipHeaderBytes, aeadOverhead int) int {
	payload := mtu - ipHeaderBytes - UDPHeaderBytes - aeadOverhead
	if payload < 0 {
		return 0
	}
	return payload
}
