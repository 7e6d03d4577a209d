package transport

// fragMaster tracks a fragmented message's lifecycle across all of its
// sent-list fragment entries. Per DESIGN.md's Open
// Question decision, this replaces the original's refcount-initialized-
// to-2 trick with an explicit boolean plus a plain counter: the master is
// freed exactly when allFragmentsSent is true and unackedFragments is 0.
type fragMaster struct {
	allFragmentsSent bool
	unackedFragments int
}

func (m *fragMaster) freeable() bool {
	return m.allFragmentsSent && m.unackedFragments == 0
}

// sentNode is a reliable message (or one fragment of one) that has been
// transmitted at least once and awaits ACK coverage.
type sentNode struct {
	id           uint32
	stream       uint8
	sop          byte
	payload      []byte
	isFragStart  bool
	fragTotalLen int // valid when isFragStart: the total length field the receiver's reassembly slot needs
	fragMaster   *fragMaster // nil unless this node is part of a fragmented message
	tsFirstSend  int64
	tsLastSend   int64
	lossRep      bool

	prev, next *sentNode
}

// firstSendOnly reports whether this node has only ever been sent once,
// the condition under which an ACK is eligible to update smoothed RTT
//: "Only the first transmission of a message is eligible
// to update RTT on ACK ... via equality of ts_firstsend == ts_lastsend
// for non-fragments", generalized here to apply uniformly since this
// rewrite does not use the original's ts_firstsend==1 sentinel trick.
func (n *sentNode) firstSendOnly() bool {
	return n.tsFirstSend == n.tsLastSend
}

// sentList is a per-stream, ACK-ID-ascending doubly linked list of sent
// nodes awaiting ACK, with O(1) id lookup via an index map. Insertion is
// always at the tail because ACK-IDs are assigned monotonically
//.
type sentList struct {
	head, tail *sentNode
	byID       map[uint32]*sentNode
}

func newSentList() *sentList {
	return &sentList{byID: make(map[uint32]*sentNode)}
}

func (l *sentList) append(n *sentNode) {
	n.prev = l.tail
	n.next = nil
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.byID[n.id] = n
}

func (l *sentList) remove(n *sentNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	delete(l.byID, n.id)
}

func (l *sentList) get(id uint32) (*sentNode, bool) {
	n, ok := l.byID[id]
	return n, ok
}

func (l *sentList) len() int { return len(l.byID) }

// evictBefore removes every node with id < upto in one pass from the
// head, mirroring original_source's SendQueue::RemoveBefore
// (Transport.cpp:169) bulk eviction on a ROLLUP covering a prefix of the
// list, rather than a per-id removal.
func (l *sentList) evictBefore(upto uint32) []*sentNode {
	var evicted []*sentNode
	for n := l.head; n != nil && n.id < upto; {
		next := n.next
		l.remove(n)
		evicted = append(evicted, n)
		n = next
	}
	return evicted
}

// forEach walks the list in ascending id order. f must not mutate the list.
func (l *sentList) forEach(f func(*sentNode)) {
	for n := l.head; n != nil; n = n.next {
		f(n)
	}
}
