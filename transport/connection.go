package transport

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	logging "gopkg.in/op/go-logging.v1"

	"raknetdp/metrics"
)

// ConnectionConfig supplies a Connection's external collaborators and
// callbacks. Sink is required. AEAD may be nil, in which case every
// stream's ACK-IDs start at 0 and no AEAD overhead is subtracted from the
// default MaxPayload; Clock defaults to SystemClock, and the rest have
// defaults or may be left nil.
type ConnectionConfig struct {
	AEAD   AEAD
	Sink   DatagramSink
	Clock  Clock
	Padder Padder
	Alloc  Allocator

	// IsInitiator picks which of the two symmetric key-derivation labels
	// this side uses for each stream's initial ACK-ID seed, so both ends
	// of a connection converge on the same send/recv-expected pair
	// without a separate negotiation.
	IsInitiator bool

	MaxPayload int // 0 selects MaximumMTU minus IPv4/UDP/AEAD overhead

	Logger  *logging.Logger
	Metrics *metrics.Collector

	OnDeliver            func(stream uint8, payload []byte)
	OnHugeChunk          func(stream uint8, chunk []byte, final bool)
	OnDisconnectComplete func(reason byte)
}

// Connection is the root entity of the transport: one per remote peer
//. It holds four per-stream reliable send/receive states,
// one cluster buffer, one flow-control governor, one fragment
// reassembly slot per stream, and a disconnect countdown.
//
// Three locks guard disjoint state: sendQueueMu guards the
// per-stream not-yet-transmitted FIFOs; clusterMu guards the cluster
// buffer, flow control, and the sent-list/next-send-id pair; ackMu
// guards the receive-wait queues, fragment slots, next-expected ids and
// the got-reliable flags. clusterMu stays held while a cluster flush calls
// Sink.PostDatagram.
type Connection struct {
	ID uuid.UUID

	aead   AEAD
	sink   DatagramSink
	clock  Clock
	padder Padder
	alloc  Allocator
	logger *logging.Logger
	metric *metrics.Collector

	onDeliver            func(stream uint8, payload []byte)
	onHugeChunk          func(stream uint8, chunk []byte, final bool)
	onDisconnectComplete func(reason byte)

	sendQueueMu sync.Mutex
	sendQ       [NumStreams]*sendQueue

	clusterMu    sync.Mutex
	cluster      *cluster
	flow         *flowGovernor
	sentLists    [NumStreams]*sentList
	nextSendID   [NumStreams]uint32
	peerExpected [NumStreams]uint32 // reference for ACK-ID tag compression, updated from incoming ROLLUPs

	ackMu            sync.Mutex
	nextRecvExpected [NumStreams]uint32
	recvWait         [NumStreams]*recvWaitQueue
	fragSlots        [NumStreams]*fragmentSlot
	gotReliable      [NumStreams]bool
	lastRecvMs       int64

	disc disconnectState
}

func sendSeedLabel(isInitiator bool, stream int) string {
	if isInitiator {
		return fmt.Sprintf("raknetdp-dir-ab-%d", stream)
	}
	return fmt.Sprintf("raknetdp-dir-ba-%d", stream)
}

func recvSeedLabel(isInitiator bool, stream int) string {
	if isInitiator {
		return fmt.Sprintf("raknetdp-dir-ba-%d", stream)
	}
	return fmt.Sprintf("raknetdp-dir-ab-%d", stream)
}

// NewConnection constructs a Connection. It derives each stream's
// initial send and receive-expected ACK-IDs from the AEAD envelope's
// keyed generate_key, so the first ACK-IDs are not known plaintext to an
// observer.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	if cfg.Padder == nil {
		cfg.Padder = NoopPadder{}
	}
	if cfg.Alloc == nil {
		cfg.Alloc = DefaultAllocator{}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	maxPayload := cfg.MaxPayload
	if maxPayload <= 0 {
		overhead := 0
		if cfg.AEAD != nil {
			overhead = cfg.AEAD.Overhead()
		}
		maxPayload = effectiveMaxPayload(MaximumMTU, IPv4HeaderBytes, overhead)
	}

	c := &Connection{
		ID:                   uuid.New(),
		aead:                 cfg.AEAD,
		sink:                 cfg.Sink,
		clock:                cfg.Clock,
		padder:               cfg.Padder,
		alloc:                cfg.Alloc,
		logger:               cfg.Logger,
		metric:               cfg.Metrics,
		onDeliver:            cfg.OnDeliver,
		onHugeChunk:          cfg.OnHugeChunk,
		onDisconnectComplete: cfg.OnDisconnectComplete,
		cluster:              newCluster(maxPayload),
		flow:                 newFlowGovernor(),
	}

	for s := 0; s < NumStreams; s++ {
		c.sendQ[s] = newSendQueue()
		c.sentLists[s] = newSentList()
		c.recvWait[s] = newRecvWaitQueue()
		c.fragSlots[s] = &fragmentSlot{}

		if cfg.AEAD != nil {
			var sendBuf, recvBuf [4]byte
			if err := cfg.AEAD.GenerateKey(sendSeedLabel(cfg.IsInitiator, s), sendBuf[:]); err != nil {
				return nil, err
			}
			if err := cfg.AEAD.GenerateKey(recvSeedLabel(cfg.IsInitiator, s), recvBuf[:]); err != nil {
				return nil, err
			}
			c.nextSendID[s] = binary.BigEndian.Uint32(sendBuf[:]) & 0xFFFFF
			c.nextRecvExpected[s] = binary.BigEndian.Uint32(recvBuf[:]) & 0xFFFFF
		}
		c.peerExpected[s] = c.nextSendID[s]
	}
	return c, nil
}

// WriteReliable enqueues payload for reliable delivery on stream, in FIFO
// order relative to other WriteReliable calls on the same stream
//. It does not itself transmit - Tick and the receive
// pipeline's piggyback step do.
func (c *Connection) WriteReliable(stream uint8, payload []byte) error {
	if len(payload) < MinMessageLength || stream >= NumStreams {
		return ErrTruncated
	}
	if c.disc.sendsBlocked() {
		return ErrConnectionClosing
	}
	c.sendQueueMu.Lock()
	c.sendQ[stream].push(&outgoingMessage{stream: stream, sop: SOPData, payload: payload})
	c.sendQueueMu.Unlock()
	return nil
}

// WriteUnreliable appends payload to the in-progress cluster as an
// unreliable DATA message, bypassing the send queue and sent list
// entirely; it goes out with the next cluster flush.
func (c *Connection) WriteUnreliable(payload []byte) error {
	if len(payload)+HeaderSize(len(payload)) > c.cluster.maxPayload {
		return ErrTruncated
	}
	if c.disc.sendsBlocked() {
		return ErrConnectionClosing
	}
	c.clusterMu.Lock()
	defer c.clusterMu.Unlock()
	var encoded []byte
	hdr := FrameHeader{SOP: SOPData, Length: len(payload)}
	encoded = EncodeHeader(encoded, hdr)
	encoded = append(encoded, payload...)
	c.writeToCluster(encoded)
	return nil
}

// WriteInternal sends an unreliable internal control message - currently MTU probing and the disconnect notice, the latter
// emitted directly by tickDisconnect rather than through this path.
func (c *Connection) WriteInternal(opcode byte, payload []byte) error {
	if c.disc.sendsBlocked() {
		return ErrConnectionClosing
	}
	body := append([]byte{opcode}, payload...)
	c.clusterMu.Lock()
	defer c.clusterMu.Unlock()
	var encoded []byte
	hdr := FrameHeader{SOP: SOPInternal, Length: len(body)}
	encoded = EncodeHeader(encoded, hdr)
	encoded = append(encoded, body...)
	c.writeToCluster(encoded)
	return nil
}

// Disconnect arms the graceful-shutdown countdown. It is
// idempotent; a second call while already disconnecting has no effect.
func (c *Connection) Disconnect(reason byte) {
	c.disc.arm(reason, false)
}

// Disconnected reports whether this connection has begun or completed
// graceful shutdown.
func (c *Connection) Disconnected() bool { return c.disc.active }

// Now returns the configured Clock's current time in milliseconds, so
// callers driving Tick/OnDatagram do not need their own time source.
func (c *Connection) Now() int64 { return c.clock.NowMs() }

// writeToCluster appends already-encoded bytes to the in-progress
// datagram, flushing first if they would not fit. Callers must hold
// clusterMu.
func (c *Connection) writeToCluster(encoded []byte) {
	if !c.cluster.grow(len(encoded)) {
		c.flushClusterLocked()
	}
	c.cluster.write(encoded)
}

// flushClusterLocked hands the in-progress datagram to the sink. Callers
// must hold clusterMu, and it stays held across the PostDatagram call,
// which keeps the flush atomic with the buffer swap.
func (c *Connection) flushClusterLocked() {
	data := c.cluster.flush()
	if data == nil {
		return
	}
	if padded := c.padder.PadLength(len(data), c.cluster.maxPayload); padded > len(data) {
		if padded > c.cluster.maxPayload {
			padded = c.cluster.maxPayload
		}
		pad := c.alloc.Alloc(padded - len(data))
		data = append(data, pad[:cap(pad)][:padded-len(data)]...)
	}
	if err := c.sink.PostDatagram(data); err != nil {
		if c.logger != nil {
			c.logger.Warningf("post datagram: %v", err)
		}
		return
	}
	c.metric.AddBytesSent(len(data))
}

// Tick drives retransmission, ACK emission, and cluster flushing
//. The host calls this at roughly 10-50ms intervals.
func (c *Connection) Tick(nowMs int64) {
	if c.disc.active {
		c.tickDisconnect(nowMs)
		return
	}
	if c.lastRecvMs != 0 && nowMs-c.lastRecvMs >= TimeoutDisconnectMs {
		c.Disconnect(ReasonTimeout)
		c.tickDisconnect(nowMs)
		return
	}

	c.retransmitLosses(nowMs)
	c.transmitPending(nowMs)
	c.maybeSendAck(nowMs)

	c.clusterMu.Lock()
	c.flushClusterLocked()
	c.metric.SetBudget(int64(c.flow.remainingBytes()))
	c.metric.SetRTT(c.flow.rttMs())
	c.flow.endTick()
	c.clusterMu.Unlock()
}

func (c *Connection) tickDisconnect(nowMs int64) {
	if c.disc.shouldEmitNotice() {
		c.clusterMu.Lock()
		var encoded []byte
		hdr := FrameHeader{SOP: SOPInternal, Length: 2}
		encoded = EncodeHeader(encoded, hdr)
		encoded = append(encoded, InternalDisconnect, c.disc.reason)
		c.writeToCluster(encoded)
		c.flushClusterLocked()
		c.clusterMu.Unlock()
	}
	if c.disc.tick() && c.onDisconnectComplete != nil {
		c.onDisconnectComplete(c.disc.reason)
	}
}

// transmitPending drains the send queues into the cluster according to
// the per-stream budget split.
func (c *Connection) transmitPending(nowMs int64) {
	var queued [NumStreams]int
	c.sendQueueMu.Lock()
	for s := 0; s < NumStreams; s++ {
		queued[s] = c.sendQ[s].totalBytes()
	}
	c.sendQueueMu.Unlock()

	c.clusterMu.Lock()
	defer c.clusterMu.Unlock()
	budget := c.flow.remainingBytes()
	share := streamShare(budget, queued)
	for s := uint8(0); s < NumStreams; s++ {
		c.drainStreamLocked(s, share[s], nowMs)
	}
}

// drainStreamLocked sends messages from sendQ[stream] until budget is
// exhausted or the queue empties. Callers must hold clusterMu.
func (c *Connection) drainStreamLocked(stream uint8, budget int, nowMs int64) {
	spent := 0
	for spent < budget {
		c.sendQueueMu.Lock()
		m := c.sendQ[stream].peek()
		c.sendQueueMu.Unlock()
		if m == nil {
			return
		}
		n := c.sendOneChunkLocked(stream, m, nowMs)
		if n == 0 {
			return
		}
		c.flow.spend(n)
		spent += n
		if m.remaining() == 0 {
			c.sendQueueMu.Lock()
			c.sendQ[stream].popFront()
			c.sendQueueMu.Unlock()
		}
	}
}

// fragTotalLenWire maps an actual payload length to the wire value of a
// fragment-start's total-length field: the real length when it is below
// HugeSentinel, or HugeSentinel for a streamed huge transfer. total is an int
// because a huge payload's real length can exceed what uint16 holds -
// comparing the already-truncated uint16 against itself is always false.
func fragTotalLenWire(total int) uint16 {
	if total >= HugeSentinel {
		return HugeSentinel
	}
	return uint16(total)
}

// sendOneChunkLocked transmits one piece of m - the whole remaining
// payload if it fits in the cluster's current headroom, otherwise one
// fragment - and links a sent-list node for it. Callers must hold
// clusterMu. Returns the number of payload bytes consumed, or 0 if no
// progress could be made (caller should stop draining this stream).
func (c *Connection) sendOneChunkLocked(stream uint8, m *outgoingMessage, nowMs int64) int {
	remaining := m.remaining()
	if remaining <= 0 {
		return 0
	}
	// Refuse to run this stream's ACK-IDs AckIDLagLimit or more ahead of
	// the peer's last reported next-expected id; a later call retries.
	if int64(c.nextSendID[stream])-int64(c.peerExpected[stream]) >= AckIDLagLimit {
		if c.logger != nil {
			c.logger.Warningf("conn %s: %v on stream %d", c.ID, ErrAckIDExhausted, stream)
		}
		return 0
	}

	overhead := func(payloadLen int, fragStart bool) int {
		n := HeaderSize(payloadLen) + MaxAckIDBytes
		if fragStart {
			n += 2
		}
		return n
	}

	alreadyFragmenting := m.fragMaster != nil
	headroom := c.cluster.headroom()

	var chunkLen int
	var sop byte = m.sop
	var fragStart bool

	if !alreadyFragmenting && remaining+overhead(remaining, false) <= headroom {
		chunkLen = remaining
	} else {
		fragStart = m.sent == 0
		sop = SOPFrag
		// splitSizes is the single source of truth for fragment chunk
		// sizing; only its first element applies here since this call
		// only ever sends one chunk. Both the flush-before-fragmenting
		// check and splitSizes's own FragThreshold fallback must compare
		// against the same net-of-header headroom, or they can disagree
		// about whether a flush already happened.
		netMaxPayload := c.cluster.maxPayload - overhead(0, false)
		netHeadroom := headroom - overhead(0, fragStart)
		if netHeadroom < FragThreshold {
			c.flushClusterLocked()
			headroom = c.cluster.headroom()
			netHeadroom = headroom - overhead(0, fragStart)
		}
		sizes := splitSizes(remaining, netHeadroom, netMaxPayload)
		if len(sizes) == 0 || sizes[0] < 1 {
			return 0
		}
		chunkLen = sizes[0]
	}

	id := c.nextSendID[stream]
	c.nextSendID[stream]++

	diff := int64(id) - int64(c.peerExpected[stream])
	if diff < 0 {
		diff = 0
	}
	width := ChooseTagWidth(uint32(diff))

	length := chunkLen
	if fragStart {
		length += 2
	}
	omit := c.cluster.canOmitAckID(stream, id)
	hdr := FrameHeader{Reliable: true, AckIDPresent: !omit, SOP: sop, Length: length}

	var encoded []byte
	encoded = EncodeHeader(encoded, hdr)
	if !omit {
		encoded = EncodeAckIDTag(encoded, stream, id, width)
	}
	if fragStart {
		encoded = EncodeFragmentStart(encoded, fragTotalLenWire(len(m.payload)))
	}
	encoded = append(encoded, m.payload[m.sent:m.sent+chunkLen]...)

	c.writeToCluster(encoded)
	c.cluster.rememberReliable(stream, id)

	node := &sentNode{
		id:          id,
		stream:      stream,
		sop:         sop,
		payload:     append([]byte(nil), m.payload[m.sent:m.sent+chunkLen]...),
		isFragStart: fragStart,
		tsFirstSend: nowMs,
		tsLastSend:  nowMs,
	}
	if fragStart {
		node.fragTotalLen = len(m.payload)
	}
	if sop == SOPFrag {
		if m.fragMaster == nil {
			m.fragMaster = &fragMaster{}
		}
		m.fragMaster.unackedFragments++
		node.fragMaster = m.fragMaster
	}
	if !c.cluster.lossRepAdded {
		node.lossRep = true
		c.cluster.lossRepAdded = true
	}
	c.sentLists[stream].append(node)

	m.sent += chunkLen
	if m.tsFirstSend == 0 {
		m.tsFirstSend = nowMs
	}
	m.tsLastSend = nowMs
	if m.remaining() == 0 && m.fragMaster != nil {
		m.fragMaster.allFragmentsSent = true
	}

	return chunkLen
}

// retransmitLosses walks every stream's sent list for nodes past their
// retransmission deadline.
func (c *Connection) retransmitLosses(nowMs int64) {
	c.clusterMu.Lock()
	defer c.clusterMu.Unlock()
	rtt := c.flow.rttMs()
	for s := uint8(0); s < NumStreams; s++ {
		var due []*sentNode
		c.sentLists[s].forEach(func(n *sentNode) {
			timeout := c.flow.positiveTimeoutMs()
			if n.lossRep {
				timeout = c.flow.negativeTimeoutMs()
			}
			backoff := retransmitBackoffMs(timeout, n.tsFirstSend, n.tsLastSend, rtt)
			if nowMs-n.tsLastSend >= timeout+backoff {
				due = append(due, n)
			}
		})
		for _, n := range due {
			c.retransmitNodeLocked(s, n, nowMs)
		}
	}
}

// retransmitNodeLocked re-encodes n with the full 3-byte ACK-ID form,
// since a retransmit cannot assume the peer's next-expected id has
// advanced. Callers must hold clusterMu.
func (c *Connection) retransmitNodeLocked(stream uint8, n *sentNode, nowMs int64) {
	length := len(n.payload)
	if n.isFragStart {
		length += 2
	}
	hdr := FrameHeader{Reliable: true, AckIDPresent: true, SOP: n.sop, Length: length}
	var encoded []byte
	encoded = EncodeHeader(encoded, hdr)
	encoded = EncodeAckIDTag(encoded, stream, n.id, TagWidth20)
	if n.isFragStart {
		encoded = EncodeFragmentStart(encoded, fragTotalLenWire(n.fragTotalLen))
	}
	encoded = append(encoded, n.payload...)
	c.writeToCluster(encoded)

	n.tsLastSend = nowMs
	n.lossRep = false
}

// maybeSendAck builds and enqueues a selective-ACK message if any stream
// has seen reliable traffic since the last one.
func (c *Connection) maybeSendAck(nowMs int64) {
	c.ackMu.Lock()
	anyGot := false
	for s := 0; s < NumStreams; s++ {
		if c.gotReliable[s] {
			anyGot = true
		}
	}
	if !anyGot {
		c.ackMu.Unlock()
		return
	}
	var nextExpected [NumStreams]uint32
	var queues [NumStreams]*recvWaitQueue
	nextExpected = c.nextRecvExpected
	queues = c.recvWait
	for s := 0; s < NumStreams; s++ {
		c.gotReliable[s] = false
	}
	c.ackMu.Unlock()

	fields := BuildAckFields(nextExpected, queues)
	var body []byte
	body = EncodeAck(body, uint16(c.flow.rttMs()), fields)

	c.clusterMu.Lock()
	var encoded []byte
	hdr := FrameHeader{SOP: SOPAck, Length: len(body)}
	encoded = EncodeHeader(encoded, hdr)
	encoded = append(encoded, body...)
	c.writeToCluster(encoded)
	c.clusterMu.Unlock()
}

// OnDatagram parses one already-AEAD-opened datagram and runs the
// receive pipeline, then opportunistically transmits
// queued reliable sends and an ACK so they piggyback on this round trip.
func (c *Connection) OnDatagram(data []byte, recvTimeMs int64) error {
	c.ackMu.Lock()
	c.lastRecvMs = recvTimeMs
	c.ackMu.Unlock()

	var haveLast bool
	var lastStream uint8
	var lastID uint32

	for len(data) > 0 {
		hdr, n, err := DecodeHeader(data)
		if err != nil {
			if c.logger != nil {
				c.logger.Warningf("conn %s: truncated header: %v", c.ID, err)
			}
			return nil
		}
		data = data[n:]

		var ackID uint32
		var stream uint8
		if hdr.AckIDPresent {
			s, raw, width, consumed, err := DecodeAckIDTag(data)
			if err != nil {
				if c.logger != nil {
					c.logger.Warningf("conn %s: truncated ack-id: %v", c.ID, err)
				}
				return nil
			}
			data = data[consumed:]
			stream = s
			c.ackMu.Lock()
			ref := c.nextRecvExpected[s]
			c.ackMu.Unlock()
			ackID = ReconstructAckID(ref, raw, width)
		} else if hdr.Reliable {
			if !haveLast {
				if c.logger != nil {
					c.logger.Warningf("conn %s: ack-id omitted with no preceding reliable message", c.ID)
				}
				return nil
			}
			stream = lastStream
			ackID = lastID + 1
		}

		if len(data) < hdr.Length {
			if c.logger != nil {
				c.logger.Warningf("conn %s: truncated payload on stream %d", c.ID, stream)
			}
			return nil
		}
		payload := data[:hdr.Length]
		data = data[hdr.Length:]

		if hdr.Reliable {
			haveLast = true
			lastStream = stream
			lastID = ackID
		}

		c.dispatch(stream, ackID, hdr, payload, recvTimeMs)
	}

	c.transmitPending(recvTimeMs)
	c.maybeSendAck(recvTimeMs)
	c.clusterMu.Lock()
	c.flushClusterLocked()
	c.clusterMu.Unlock()
	return nil
}

func (c *Connection) dispatch(stream uint8, ackID uint32, hdr FrameHeader, payload []byte, nowMs int64) {
	if !hdr.Reliable {
		switch hdr.SOP {
		case SOPData:
			if c.onDeliver != nil {
				c.onDeliver(stream, payload)
			}
		case SOPAck:
			c.handleAck(payload, nowMs)
		case SOPInternal:
			c.handleInternal(payload, nowMs)
		}
		return
	}

	c.ackMu.Lock()
	defer c.ackMu.Unlock()

	expected := c.nextRecvExpected[stream]
	diff := int64(ackID) - int64(expected)
	switch {
	case diff == 0:
		c.nextRecvExpected[stream] = expected + 1
		c.gotReliable[stream] = true
		c.deliverReliableLocked(stream, hdr.SOP, payload, nowMs)
		for {
			run := c.recvWait[stream].popContiguous(c.nextRecvExpected[stream])
			if run == nil {
				break
			}
			for _, rn := range run {
				c.nextRecvExpected[stream]++
				if !rn.placeholder {
					c.deliverReliableLocked(stream, rn.sop, rn.payload, nowMs)
				}
			}
		}
	case diff > 0:
		c.gotReliable[stream] = true
		if stream == UnorderedStream && hdr.SOP == SOPData {
			c.deliverReliableLocked(stream, hdr.SOP, payload, nowMs)
			n := &recvNode{id: ackID, placeholder: true}
			n.eos = n
			if inserted, _ := c.recvWait[stream].insert(n); !inserted && c.logger != nil {
				c.logger.Warningf("conn %s: out-of-order window full on stream %d, dropping id %d", c.ID, stream, ackID)
			}
		} else {
			n := &recvNode{id: ackID, sop: hdr.SOP, payload: append([]byte(nil), payload...)}
			n.eos = n
			if inserted, _ := c.recvWait[stream].insert(n); !inserted && c.logger != nil {
				c.logger.Warningf("conn %s: out-of-order window full on stream %d, dropping id %d", c.ID, stream, ackID)
			}
		}
	default:
		// duplicate: drop, but still re-arm the rollup ACK so a stale
		// retransmission can be suppressed.
		c.gotReliable[stream] = true
		if c.logger != nil {
			c.logger.Warningf("conn %s: duplicate reliable id %d on stream %d", c.ID, ackID, stream)
		}
	}
}

func (c *Connection) deliverReliableLocked(stream uint8, sop byte, payload []byte, nowMs int64) {
	if slot := c.fragSlots[stream]; slot.active && slot.huge && sop != SOPFrag {
		// A non-FRAG arrival ends a streamed huge transfer (fragment.go's
		// documented closing rule), since huge mode carries no declared
		// length to count down to zero.
		if c.onHugeChunk != nil {
			c.onHugeChunk(stream, nil, true)
		}
		slot.reset()
	}
	switch sop {
	case SOPFrag:
		c.appendFragmentLocked(stream, payload)
	case SOPData:
		if c.onDeliver != nil {
			c.onDeliver(stream, payload)
		}
	case SOPInternal:
		c.handleInternal(payload, nowMs)
	}
}

func (c *Connection) appendFragmentLocked(stream uint8, payload []byte) {
	slot := c.fragSlots[stream]
	if !slot.active {
		if len(payload) < 2 {
			if c.logger != nil {
				c.logger.Warningf("fragment start too short on stream %d", stream)
			}
			return
		}
		total, _, _ := DecodeFragmentStart(payload)
		slot.begin(total)
		payload = payload[2:]
	} else if len(payload) == 0 {
		// A zero-length FRAG on an already-active slot is an explicit
		// abort: drop the reassembly buffer and reset.
		if c.logger != nil {
			c.logger.Warningf("fragment reassembly aborted by zero-length FRAG on stream %d", stream)
		}
		if slot.huge && c.onHugeChunk != nil {
			c.onHugeChunk(stream, nil, true)
		}
		slot.reset()
		return
	}

	if slot.huge {
		if len(payload) > 0 && c.onHugeChunk != nil {
			c.onHugeChunk(stream, payload, false)
		}
		return
	}
	if len(payload) > 0 && slot.append(payload) {
		if len(slot.buffer) > slot.totalLength {
			slot.buffer = slot.buffer[:slot.totalLength]
		}
		if c.onDeliver != nil {
			c.onDeliver(stream, slot.buffer)
		}
		slot.reset()
	}
}

func (c *Connection) handleInternal(payload []byte, nowMs int64) {
	if len(payload) == 0 {
		return
	}
	switch payload[0] {
	case InternalDisconnect:
		reason := byte(ReasonUserClosed)
		if len(payload) > 1 {
			reason = payload[1]
		}
		c.disc.arm(reason, true)
	case InternalMTUProbe:
	}
}

func (c *Connection) handleAck(payload []byte, nowMs int64) {
	_, fields, err := DecodeAck(payload)
	if err != nil {
		if c.logger != nil {
			c.logger.Warningf("conn %s: truncated ack body: %v", c.ID, err)
		}
		return
	}
	groups := groupByStream(fields)

	c.clusterMu.Lock()
	defer c.clusterMu.Unlock()
	totalLoss := 0
	for _, g := range groups {
		if len(g) == 0 || !g[0].Rollup {
			continue
		}
		stream := g[0].Stream
		c.peerExpected[stream] = g[0].NextID
		result := ApplyAckFields(c.sentLists[stream], g)
		for _, n := range result.evicted {
			if n.firstSendOnly() {
				c.flow.onAck(nowMs - n.tsFirstSend)
			}
			if n.fragMaster != nil {
				n.fragMaster.unackedFragments--
			}
		}
		if result.lossEvented {
			totalLoss++
		}
		for _, n := range result.retransmit {
			c.retransmitNodeLocked(stream, n, nowMs)
		}
	}
	for i := 0; i < totalLoss; i++ {
		c.flow.recordLoss()
	}
	c.metric.AddLoss(totalLoss)
}

// groupByStream splits a decoded ACK field sequence back into per-stream
// groups, each beginning with the stream's ROLLUP field.
func groupByStream(fields []AckField) [][]AckField {
	var groups [][]AckField
	var cur []AckField
	for _, f := range fields {
		if f.Rollup {
			if cur != nil {
				groups = append(groups, cur)
			}
			cur = []AckField{f}
		} else if cur != nil {
			cur = append(cur, f)
		}
	}
	if cur != nil {
		groups = append(groups, cur)
	}
	return groups
}
